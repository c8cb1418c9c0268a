package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjstillabower/climate-anomaly-service/internal/circuitbreaker"
)

const testKey = "test-api-key-12345"

func writeTemperature(w http.ResponseWriter, name string, temp float64, dt int64) {
	apiResp := map[string]interface{}{
		"name": name,
		"dt":   dt,
		"main": map[string]interface{}{
			"temp":     temp,
			"humidity": 65,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(apiResp)
}

// TestNewOpenWeatherClient verifies constructor validation of the API key.
func TestNewOpenWeatherClient(t *testing.T) {
	tests := []struct {
		name    string
		apiKey  string
		wantErr bool
	}{
		{"valid key", testKey, false},
		{"empty key", "", true},
		{"short key", "short", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOpenWeatherClient(tt.apiKey, "http://example.invalid", time.Second)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewOpenWeatherClient() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidAPIKey) {
				t.Errorf("NewOpenWeatherClient() error = %v, want ErrInvalidAPIKey", err)
			}
		})
	}
}

// TestOpenWeatherClient_GetCurrentTemperature_Success verifies the request parameters and
// that the observation month is derived from the provider's dt in UTC.
func TestOpenWeatherClient_GetCurrentTemperature_Success(t *testing.T) {
	// 2024-01-31T23:30:00Z: still January in UTC.
	dt := time.Date(2024, time.January, 31, 23, 30, 0, 0, time.UTC).Unix()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("q") != "Seattle" {
			t.Errorf("q = %q, want Seattle", q.Get("q"))
		}
		if q.Get("units") != "metric" {
			t.Errorf("units = %q, want metric", q.Get("units"))
		}
		if q.Get("appid") != testKey {
			t.Errorf("appid = %q, want %q", q.Get("appid"), testKey)
		}
		writeTemperature(w, "Seattle", 4.5, dt)
	}))
	defer server.Close()

	c, err := NewOpenWeatherClient(testKey, server.URL, 2*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}

	got, err := c.GetCurrentTemperature(context.Background(), "Seattle")
	if err != nil {
		t.Fatalf("GetCurrentTemperature() error = %v", err)
	}
	if got.City != "Seattle" {
		t.Errorf("City = %q, want Seattle", got.City)
	}
	if got.Temperature != 4.5 {
		t.Errorf("Temperature = %v, want 4.5", got.Temperature)
	}
	if got.Month != time.January {
		t.Errorf("Month = %v, want January", got.Month)
	}
	if !got.ObservedAt.Equal(time.Unix(dt, 0)) {
		t.Errorf("ObservedAt = %v, want %v", got.ObservedAt, time.Unix(dt, 0).UTC())
	}
}

// TestOpenWeatherClient_GetCurrentTemperature_MissingTemperature verifies that a payload
// without main.temp is a transport failure rather than a zero reading.
func TestOpenWeatherClient_GetCurrentTemperature_MissingTemperature(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"Seattle","main":{}}`))
	}))
	defer server.Close()

	c, err := NewOpenWeatherClientWithRetry(testKey, server.URL, 2*time.Second, 1, time.Millisecond, time.Millisecond)
	if err != nil {
		t.Fatalf("NewOpenWeatherClientWithRetry() error = %v", err)
	}

	_, err = c.GetCurrentTemperature(context.Background(), "Seattle")
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("GetCurrentTemperature() error = %v, want ErrTransport", err)
	}
}

// TestOpenWeatherClient_GetCurrentTemperature_ErrorHandling verifies status code mapping to
// classified errors and whether each is retried.
func TestOpenWeatherClient_GetCurrentTemperature_ErrorHandling(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    error
		retryable  bool
	}{
		{"401 unauthorized", http.StatusUnauthorized, ErrInvalidAPIKey, false},
		{"404 not found", http.StatusNotFound, ErrLocationNotFound, false},
		{"400 bad request", http.StatusBadRequest, ErrLocationNotFound, false},
		{"429 rate limited", http.StatusTooManyRequests, ErrRateLimited, true},
		{"500 server error", http.StatusInternalServerError, ErrUpstreamFailure, true},
		{"502 bad gateway", http.StatusBadGateway, ErrUpstreamFailure, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			c, err := NewOpenWeatherClientWithRetry(testKey, server.URL, 2*time.Second, 1, 10*time.Millisecond, 100*time.Millisecond)
			if err != nil {
				t.Fatalf("NewOpenWeatherClientWithRetry() error = %v", err)
			}

			_, err = c.GetCurrentTemperature(context.Background(), "test")
			if err == nil {
				t.Fatalf("GetCurrentTemperature() expected error, got nil")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("GetCurrentTemperature() error = %v, want %v", err, tt.wantErr)
			}
			if got := c.isRetryable(err); got != tt.retryable {
				t.Errorf("isRetryable() = %v, want %v for %v", got, tt.retryable, err)
			}
		})
	}
}

// TestOpenWeatherClient_GetCurrentTemperature_RetryLogic verifies that upstream failures are
// retried until a success.
func TestOpenWeatherClient_GetCurrentTemperature_RetryLogic(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeTemperature(w, "Seattle", 15.5, 0)
	}))
	defer server.Close()

	c, err := NewOpenWeatherClientWithRetry(testKey, server.URL, 2*time.Second, 3, 10*time.Millisecond, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("NewOpenWeatherClientWithRetry() error = %v", err)
	}

	got, err := c.GetCurrentTemperature(context.Background(), "seattle")
	if err != nil {
		t.Fatalf("GetCurrentTemperature() error = %v", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
	if got.City != "seattle" {
		t.Errorf("City = %q, want %q", got.City, "seattle")
	}
	if got.Month == 0 {
		t.Errorf("Month = 0, want month derived from current time")
	}
}

// TestOpenWeatherClient_GetCurrentTemperature_NoRetryOnNonRetryableError verifies a single
// attempt for credential failures.
func TestOpenWeatherClient_GetCurrentTemperature_NoRetryOnNonRetryableError(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c, err := NewOpenWeatherClientWithRetry(testKey, server.URL, 2*time.Second, 3, 10*time.Millisecond, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("NewOpenWeatherClientWithRetry() error = %v", err)
	}

	_, err = c.GetCurrentTemperature(context.Background(), "test")
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Fatalf("GetCurrentTemperature() error = %v, want %v", err, ErrInvalidAPIKey)
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt (no retry), got %d", attempts.Load())
	}
}

// TestOpenWeatherClient_GetCurrentTemperature_ContextCancellation verifies that a cancelled
// context surfaces as a transport failure wrapping context.Canceled.
func TestOpenWeatherClient_GetCurrentTemperature_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c, err := NewOpenWeatherClient(testKey, server.URL, 2*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = c.GetCurrentTemperature(ctx, "test")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("GetCurrentTemperature() error = %v, want context.Canceled", err)
	}
	if !IsTransportFailure(err) {
		t.Errorf("IsTransportFailure(%v) = false, want true", err)
	}
}

// TestOpenWeatherClient_GetCurrentTemperature_CorrelationID verifies correlation ID propagation.
func TestOpenWeatherClient_GetCurrentTemperature_CorrelationID(t *testing.T) {
	var capturedCorrID atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedCorrID.Store(r.Header.Get("X-Correlation-ID"))
		writeTemperature(w, "Paris", 12, 0)
	}))
	defer server.Close()

	c, err := NewOpenWeatherClient(testKey, server.URL, 2*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}

	ctx := context.WithValue(context.Background(), "correlation_id", "corr-123")
	if _, err := c.GetCurrentTemperature(ctx, "Paris"); err != nil {
		t.Fatalf("GetCurrentTemperature() error = %v", err)
	}
	if got, _ := capturedCorrID.Load().(string); got != "corr-123" {
		t.Errorf("X-Correlation-ID = %q, want corr-123", got)
	}
}

// TestOpenWeatherClient_CircuitBreaker verifies that repeated upstream failures open the
// circuit and later calls fail fast without reaching the provider.
func TestOpenWeatherClient_CircuitBreaker(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c, err := NewOpenWeatherClientWithRetry(testKey, server.URL, 2*time.Second, 1, time.Millisecond, time.Millisecond)
	if err != nil {
		t.Fatalf("NewOpenWeatherClientWithRetry() error = %v", err)
	}
	c.SetCircuitBreaker(circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          time.Minute,
		Component:        "weather_api",
		IsFailure:        IsTransportFailure,
	}))

	for i := 0; i < 2; i++ {
		if _, err := c.GetCurrentTemperature(context.Background(), "Oslo"); !errors.Is(err, ErrUpstreamFailure) {
			t.Fatalf("call %d error = %v, want ErrUpstreamFailure", i, err)
		}
	}

	_, err = c.GetCurrentTemperature(context.Background(), "Oslo")
	if !errors.Is(err, circuitbreaker.ErrOpen) {
		t.Fatalf("GetCurrentTemperature() error = %v, want circuitbreaker.ErrOpen", err)
	}
	if attempts.Load() != 2 {
		t.Errorf("upstream attempts = %d, want 2", attempts.Load())
	}
}

// TestOpenWeatherClient_CircuitBreaker_IgnoresCityErrors verifies that unknown-city answers
// do not trip the circuit.
func TestOpenWeatherClient_CircuitBreaker_IgnoresCityErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c, err := NewOpenWeatherClientWithRetry(testKey, server.URL, 2*time.Second, 1, time.Millisecond, time.Millisecond)
	if err != nil {
		t.Fatalf("NewOpenWeatherClientWithRetry() error = %v", err)
	}
	cb := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          time.Minute,
		IsFailure:        IsTransportFailure,
	})
	c.SetCircuitBreaker(cb)

	for i := 0; i < 3; i++ {
		if _, err := c.GetCurrentTemperature(context.Background(), "Atlantis"); !errors.Is(err, ErrLocationNotFound) {
			t.Fatalf("call %d error = %v, want ErrLocationNotFound", i, err)
		}
	}
	if cb.State() != circuitbreaker.StateClosed {
		t.Errorf("State() = %v, want closed", cb.State())
	}
}

// TestOpenWeatherClient_ValidateAPIKey verifies startup key validation.
func TestOpenWeatherClient_ValidateAPIKey(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    error
	}{
		{"valid", http.StatusOK, nil},
		{"rejected", http.StatusUnauthorized, ErrInvalidAPIKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.statusCode == http.StatusOK {
					writeTemperature(w, "London", 10, 0)
					return
				}
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			c, err := NewOpenWeatherClient(testKey, server.URL, 2*time.Second)
			if err != nil {
				t.Fatalf("NewOpenWeatherClient() error = %v", err)
			}
			err = c.ValidateAPIKey(context.Background())
			if tt.wantErr == nil && err != nil {
				t.Fatalf("ValidateAPIKey() error = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("ValidateAPIKey() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// TestCalculateBackoff verifies exponential growth capped at the max delay.
func TestCalculateBackoff(t *testing.T) {
	c := &OpenWeatherClient{retryBaseDelay: 100 * time.Millisecond, retryMaxDelay: 300 * time.Millisecond}
	if d := c.calculateBackoff(1); d < 100*time.Millisecond || d > 110*time.Millisecond {
		t.Errorf("calculateBackoff(1) = %v, want ~100ms", d)
	}
	if d := c.calculateBackoff(5); d < 300*time.Millisecond || d > 330*time.Millisecond {
		t.Errorf("calculateBackoff(5) = %v, want capped ~300ms", d)
	}
}
