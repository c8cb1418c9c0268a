package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestMetrics_Usable verifies that all Prometheus metrics can be used without
// panic, ensuring label dimensions match usage across client, http, service, and cache packages.
func TestMetrics_Usable(t *testing.T) {
	// Route uses path template to avoid cardinality (e.g. /cities/{city}/live not /cities/oslo/live)
	HTTPRequestsTotal.WithLabelValues("GET", "/cities/{city}/live", "2xx").Inc()
	HTTPRequestDuration.WithLabelValues("GET", "/cities/{city}/live").Observe(0.01)
	DatasetLoadsTotal.WithLabelValues("success").Inc()
	AnalysisDuration.Observe(0.2)
	LiveVerdictsTotal.WithLabelValues("anomalous").Inc()
	WeatherAPICallsTotal.WithLabelValues("success").Inc()
	WeatherAPIDuration.WithLabelValues("success").Observe(0.1)
	WeatherAPIErrorsTotal.WithLabelValues("timeout").Inc()
	CacheHitsTotal.WithLabelValues("live").Inc()
	CacheErrorsTotal.WithLabelValues("get").Inc()
	RequestCoalescingHitsTotal.Inc()
	CacheWarmingTotal.Inc()
	CacheWarmingErrorsTotal.Inc()
	CacheWarmingDurationSeconds.Observe(0.5)
	RateLimitDeniedTotal.Inc()
	RecordCircuitBreakerTransition("weather_api", "closed", "open", 1)
	RecordDatasetSnapshot(100, 2, 3)
}

// TestMetricsHandler_ServesPrometheusFormat verifies that MetricsHandler serves
// Prometheus text exposition format with correct HTTP status and metric output.
func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/health", "2xx").Inc()
	RecordDatasetSnapshot(10, 1, 0)

	handler := MetricsHandler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("MetricsHandler status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	for _, name := range []string{"httpRequestsTotal", "datasetReadings 10"} {
		if !strings.Contains(body, name) {
			t.Errorf("MetricsHandler response should contain %q", name)
		}
	}
}
