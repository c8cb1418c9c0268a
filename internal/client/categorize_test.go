package client

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kjstillabower/climate-anomaly-service/internal/circuitbreaker"
)

// TestCategorizeError verifies that CategorizeError maps errors to the correct ErrorCategory
// for metrics labeling, including wrapped sentinel errors.
func TestCategorizeError(t *testing.T) {
	// name: test case description; err: input error; want: expected ErrorCategory.
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ""},
		{"timeout context", context.DeadlineExceeded, ErrorCategoryTimeout},
		{"canceled context", context.Canceled, ErrorCategoryTimeout},
		{"invalid API key", ErrInvalidAPIKey, ErrorCategoryInvalidAPIKey},
		{"wrapped invalid API key", fmt.Errorf("auth: %w", ErrInvalidAPIKey), ErrorCategoryInvalidAPIKey},
		{"location not found", ErrLocationNotFound, ErrorCategoryLocationNotFound},
		{"rate limited", ErrRateLimited, ErrorCategoryRateLimited},
		{"upstream failure", ErrUpstreamFailure, ErrorCategoryUpstream5xx},
		{"circuit open", circuitbreaker.ErrOpen, ErrorCategoryCircuitOpen},
		{"transport", fmt.Errorf("%w: connection refused", ErrTransport), ErrorCategoryTransport},
		{"timeout wrapped in transport", fmt.Errorf("%w: %w", ErrTransport, context.DeadlineExceeded), ErrorCategoryTimeout},
		{"unknown", errors.New("something else"), ErrorCategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CategorizeError(tt.err)
			if got != tt.want {
				t.Errorf("CategorizeError() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestIsTransportFailure verifies which errors count as "could not obtain the live temperature".
func TestIsTransportFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"transport", fmt.Errorf("%w: dial", ErrTransport), true},
		{"upstream", ErrUpstreamFailure, true},
		{"rate limited", ErrRateLimited, true},
		{"circuit open", circuitbreaker.ErrOpen, true},
		{"invalid key", ErrInvalidAPIKey, false},
		{"city not found", ErrLocationNotFound, false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransportFailure(tt.err); got != tt.want {
				t.Errorf("IsTransportFailure(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
