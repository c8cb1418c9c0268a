package validation

import (
	"errors"
	"strings"
	"unicode"
)

var (
	// ErrCityEmpty is returned when the city is empty or whitespace-only after trim.
	ErrCityEmpty = errors.New("city is required")
	// ErrCityTooShort is returned when the city length is below the minimum.
	ErrCityTooShort = errors.New("city too short")
	// ErrCityTooLong is returned when the city length exceeds the maximum.
	ErrCityTooLong = errors.New("city too long")
	// ErrCityInvalidChars is returned when the city contains disallowed characters.
	ErrCityInvalidChars = errors.New("city contains invalid characters")
)

// ValidateCity trims the input, enforces length bounds (minLen, maxLen in runes),
// and restricts to letters (Unicode), digits, space, comma, hyphen, period and apostrophe.
// Returns the trimmed name with case preserved: dataset lookups are case-sensitive.
func ValidateCity(input string, minLen, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	n := len(r)
	if n == 0 {
		return "", ErrCityEmpty
	}
	if minLen > 0 && n < minLen {
		return "", ErrCityTooShort
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrCityTooLong
	}
	for _, c := range r {
		if !isAllowedCityRune(c) {
			return "", ErrCityInvalidChars
		}
	}
	return s, nil
}

func isAllowedCityRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '\'':
		return true
	}
	return false
}
