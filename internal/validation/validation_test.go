package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateCity_EmptyAndWhitespace(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"spaces", "   "},
		{"tab", "\t"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateCity(tc.input, 1, 100)
			if !errors.Is(err, ErrCityEmpty) {
				t.Errorf("error = %v, want ErrCityEmpty", err)
			}
		})
	}
}

func TestValidateCity_TooShort(t *testing.T) {
	_, err := ValidateCity("x", 2, 100)
	if !errors.Is(err, ErrCityTooShort) {
		t.Errorf("error = %v, want ErrCityTooShort", err)
	}
}

func TestValidateCity_InvalidChars(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"slash", "sea/ttle"},
		{"backslash", "sea\\ttle"},
		{"question", "sea?ttle"},
		{"hash", "sea#ttle"},
		{"control", "sea\x00ttle"},
		{"percent", "sea%ttle"},
		{"ampersand", "sea&ttle"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateCity(tc.input, 1, 100)
			if !errors.Is(err, ErrCityInvalidChars) {
				t.Errorf("error = %v, want ErrCityInvalidChars", err)
			}
		})
	}
}

// TestValidateCity_Valid verifies trimming and that case is never folded.
func TestValidateCity_Valid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple", "Seattle", "Seattle"},
		{"lowercase kept", "seattle", "seattle"},
		{"with space", "New York", "New York"},
		{"comma", "London,uk", "London,uk"},
		{"hyphen", "Some-City", "Some-City"},
		{"period", "St. Louis", "St. Louis"},
		{"apostrophe", "Xi'an", "Xi'an"},
		{"trimmed", "  Boston  ", "Boston"},
		{"unicode", "Zürich", "Zürich"},
		{"digits", "Area51", "Area51"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidateCity(tc.input, 1, 100)
			if err != nil {
				t.Fatalf("ValidateCity() err = %v", err)
			}
			if got != tc.want {
				t.Errorf("ValidateCity() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestValidateCity_LengthBoundaries(t *testing.T) {
	if got, err := ValidateCity("ab", 2, 100); err != nil || got != "ab" {
		t.Fatalf("min boundary: got %q, err = %v", got, err)
	}
	s100 := strings.Repeat("a", 100)
	if _, err := ValidateCity(s100, 1, 100); err != nil {
		t.Fatalf("max boundary: err = %v", err)
	}
	if _, err := ValidateCity(s100+"a", 1, 100); !errors.Is(err, ErrCityTooLong) {
		t.Errorf("over max: err = %v, want ErrCityTooLong", err)
	}
}
