package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/kjstillabower/climate-anomaly-service/internal/circuitbreaker"
	"github.com/kjstillabower/climate-anomaly-service/internal/models"
	"github.com/kjstillabower/climate-anomaly-service/internal/observability"
)

// WeatherClient resolves the current temperature of a city. Implementations
// return a LiveObservation or one of the classified errors below.
type WeatherClient interface {
	GetCurrentTemperature(ctx context.Context, city string) (models.LiveObservation, error)
	ValidateAPIKey(ctx context.Context) error
}

var (
	// ErrInvalidAPIKey means the provider rejected the credential.
	ErrInvalidAPIKey = errors.New("invalid API key")
	// ErrLocationNotFound means the provider could not resolve the city.
	ErrLocationNotFound = errors.New("location not found")
	// ErrUpstreamFailure means the provider answered with a server error.
	ErrUpstreamFailure = errors.New("upstream failure")
	// ErrRateLimited means the provider throttled the request.
	ErrRateLimited = errors.New("rate limited")
	// ErrTransport means no usable response was received (network, timeout, bad payload).
	ErrTransport = errors.New("transport failure")
)

// IsTransportFailure reports whether err means the live temperature could not be
// obtained for reasons unrelated to the credential or the city name.
func IsTransportFailure(err error) bool {
	return errors.Is(err, ErrTransport) ||
		errors.Is(err, ErrUpstreamFailure) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, circuitbreaker.ErrOpen) ||
		errors.Is(err, context.DeadlineExceeded)
}

type OpenWeatherClient struct {
	apiKey         string
	apiURL         string
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	breaker        *circuitbreaker.CircuitBreaker
}

func NewOpenWeatherClient(apiKey, apiURL string, timeout time.Duration) (*OpenWeatherClient, error) {
	return NewOpenWeatherClientWithRetry(apiKey, apiURL, timeout, 3, 100*time.Millisecond, 2*time.Second)
}

func NewOpenWeatherClientWithRetry(apiKey, apiURL string, timeout time.Duration, retryAttempts int, retryBaseDelay, retryMaxDelay time.Duration) (*OpenWeatherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if retryAttempts <= 0 {
		retryAttempts = 1
	}

	return &OpenWeatherClient{
		apiKey:         apiKey,
		apiURL:         apiURL,
		timeout:        timeout,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
		retryMaxDelay:  retryMaxDelay,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// SetCircuitBreaker guards every upstream call with cb. Only transport-class
// failures count against the circuit.
func (c *OpenWeatherClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

type openWeatherResponse struct {
	Main struct {
		Temp *float64 `json:"temp"`
	} `json:"main"`
	Dt   int64  `json:"dt"`
	Name string `json:"name"`
}

// GetCurrentTemperature fetches the current temperature in °C for city. The
// observation month comes from the provider's measurement time in UTC.
func (c *OpenWeatherClient) GetCurrentTemperature(ctx context.Context, city string) (models.LiveObservation, error) {
	var lastErr error

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.WeatherAPIRetriesTotal.Inc()
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return models.LiveObservation{}, fmt.Errorf("%w: %w", ErrTransport, ctx.Err())
			case <-time.After(delay):
			}
		}

		result, err := c.guardedCall(ctx, city)
		if err == nil {
			return result, nil
		}

		lastErr = err
		if !c.isRetryable(err) {
			return models.LiveObservation{}, err
		}
	}

	return models.LiveObservation{}, fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *OpenWeatherClient) guardedCall(ctx context.Context, city string) (models.LiveObservation, error) {
	if c.breaker == nil {
		return c.callAPI(ctx, city)
	}
	var result models.LiveObservation
	err := c.breaker.Call(ctx, func(ctx context.Context) error {
		var callErr error
		result, callErr = c.callAPI(ctx, city)
		return callErr
	})
	return result, err
}

func (c *OpenWeatherClient) callAPI(ctx context.Context, city string) (models.LiveObservation, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, city)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		return models.LiveObservation{}, fmt.Errorf("build request: %w", err)
	}

	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		observability.WeatherAPIDuration.WithLabelValues("error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return models.LiveObservation{}, fmt.Errorf("%w: request timeout: %w", ErrTransport, err)
		}
		return models.LiveObservation{}, fmt.Errorf("%w: http request failed: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(status).Observe(duration)

	if err := c.handleErrorResponse(resp); err != nil {
		return models.LiveObservation{}, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.LiveObservation{}, fmt.Errorf("%w: read response body: %w", ErrTransport, err)
	}

	var apiResp openWeatherResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return models.LiveObservation{}, fmt.Errorf("%w: parse response: %w", ErrTransport, err)
	}
	if apiResp.Main.Temp == nil {
		return models.LiveObservation{}, fmt.Errorf("%w: parse response: missing main.temp", ErrTransport)
	}

	return mapResponse(apiResp, city), nil
}

func (c *OpenWeatherClient) isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return false
	}
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrUpstreamFailure) ||
		errors.Is(err, ErrTransport)
}

func (c *OpenWeatherClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, city string) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("q", city)
	params.Set("appid", c.apiKey)
	params.Set("units", "metric")
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

// handleErrorResponse classifies non-2xx answers. OpenWeatherMap reports an
// unresolvable q parameter as 404 or 400.
func (c *OpenWeatherClient) handleErrorResponse(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: provider rejected the key", ErrInvalidAPIKey)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: HTTP %d", ErrLocationNotFound, resp.StatusCode)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	default:
		return fmt.Errorf("%w: HTTP %d", ErrLocationNotFound, resp.StatusCode)
	}
}

func mapResponse(apiResp openWeatherResponse, city string) models.LiveObservation {
	observed := time.Now().UTC()
	if apiResp.Dt > 0 {
		observed = time.Unix(apiResp.Dt, 0).UTC()
	}
	return models.LiveObservation{
		City:        city,
		Temperature: *apiResp.Main.Temp,
		Month:       observed.Month(),
		ObservedAt:  observed,
	}
}

func extractCorrelationID(ctx context.Context) string {
	if corrIDVal := ctx.Value("correlation_id"); corrIDVal != nil {
		if corrID, ok := corrIDVal.(string); ok {
			return corrID
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

// ValidateAPIKey issues a single lookup for a well-known city and reports
// ErrInvalidAPIKey when the provider rejects the key.
func (c *OpenWeatherClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := c.buildRequest(ctx, "London")
	if err != nil {
		return fmt.Errorf("build validation request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: validation request failed: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: API key is invalid or not activated", ErrInvalidAPIKey)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("validation failed: HTTP %d", resp.StatusCode)
	}

	return nil
}
