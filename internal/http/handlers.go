package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/climate-anomaly-service/internal/analysis"
	"github.com/kjstillabower/climate-anomaly-service/internal/client"
	"github.com/kjstillabower/climate-anomaly-service/internal/dataset"
	"github.com/kjstillabower/climate-anomaly-service/internal/lifecycle"
	"github.com/kjstillabower/climate-anomaly-service/internal/models"
	"github.com/kjstillabower/climate-anomaly-service/internal/observability"
	"github.com/kjstillabower/climate-anomaly-service/internal/service"
	"github.com/kjstillabower/climate-anomaly-service/internal/traffic"
	"github.com/kjstillabower/climate-anomaly-service/internal/validation"
)

// HealthConfig holds lifecycle thresholds for the health handler.
type HealthConfig struct {
	DegradedWindow     time.Duration
	DegradedErrorPct   int
	DegradedMinSamples int
	// CachePing, when set, is called to check cache reachability (memcached, valkey).
	CachePing func(ctx context.Context) error
}

// Limits bounds request inputs.
type Limits struct {
	CityMinLength  int
	CityMaxLength  int
	MaxUploadBytes int64
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	analysis         *service.AnalysisService
	live             *service.LiveService
	healthConfig     *HealthConfig
	limits           Limits
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(
	analysisSvc *service.AnalysisService,
	live *service.LiveService,
	healthConfig *HealthConfig,
	limits Limits,
	logger *zap.Logger,
) *Handler {
	if limits.CityMaxLength == 0 {
		limits.CityMaxLength = 100
	}
	if limits.MaxUploadBytes == 0 {
		limits.MaxUploadBytes = 64 << 20
	}
	return &Handler{
		analysis:     analysisSvc,
		live:         live,
		healthConfig: healthConfig,
		limits:       limits,
		logger:       logger,
	}
}

// PostDataset handles POST /dataset. The body is CSV; the whole upload is
// rejected if any row is invalid.
func (h *Handler) PostDataset(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, h.limits.MaxUploadBytes)
	info, err := h.analysis.Load(r.Context(), dataset.ReaderSource{Label: "upload", Body: body})
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "DATASET_TOO_LARGE", "dataset exceeds "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes")
			return
		}
		writeAnalysisError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// GetCities handles GET /cities.
func (h *Handler) GetCities(w http.ResponseWriter, r *http.Request) {
	cities, err := h.analysis.Cities()
	if err != nil {
		writeAnalysisError(w, r, err)
		return
	}
	info, _ := h.analysis.Info()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cities":  cities,
		"count":   len(cities),
		"dataset": info,
	})
}

// rollingPointResponse renders undefined statistics as null with status "undefined".
type rollingPointResponse struct {
	Timestamp     time.Time     `json:"timestamp"`
	Temperature   float64       `json:"temperature"`
	Season        models.Season `json:"season"`
	MovingAverage *float64      `json:"movingAverage"`
	MovingStd     *float64      `json:"movingStd"`
	IsAnomaly     *bool         `json:"isAnomaly"`
	Status        string        `json:"status"`
}

func toRollingResponse(p models.RollingPoint) rollingPointResponse {
	status := "undefined"
	switch {
	case p.Anomalous():
		status = "anomalous"
	case p.Defined():
		status = "normal"
	}
	return rollingPointResponse{
		Timestamp:     p.Timestamp,
		Temperature:   p.Temperature,
		Season:        p.Season,
		MovingAverage: p.MovingAverage,
		MovingStd:     p.MovingStd,
		IsAnomaly:     p.IsAnomaly,
		Status:        status,
	}
}

// GetRolling handles GET /cities/{city}/rolling[?anomalies=true].
func (h *Handler) GetRolling(w http.ResponseWriter, r *http.Request) {
	city, ok := h.cityParam(w, r)
	if !ok {
		return
	}
	anomaliesOnly, _ := strconv.ParseBool(r.URL.Query().Get("anomalies"))
	points, err := h.analysis.Rolling(city, anomaliesOnly)
	if err != nil {
		writeAnalysisError(w, r, err)
		return
	}
	out := make([]rollingPointResponse, len(points))
	for i, p := range points {
		out[i] = toRollingResponse(p)
	}
	info, _ := h.analysis.Info()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"city":   city,
		"window": info.Window,
		"points": out,
	})
}

type baselineResponse struct {
	models.SeasonBaseline
	Inconclusive bool `json:"inconclusive"`
}

// GetBaselines handles GET /cities/{city}/baselines.
func (h *Handler) GetBaselines(w http.ResponseWriter, r *http.Request) {
	city, ok := h.cityParam(w, r)
	if !ok {
		return
	}
	baselines, err := h.analysis.Baselines(city)
	if err != nil {
		writeAnalysisError(w, r, err)
		return
	}
	out := make([]baselineResponse, len(baselines))
	for i, b := range baselines {
		out[i] = baselineResponse{SeasonBaseline: b, Inconclusive: b.Inconclusive()}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"city":      city,
		"baselines": out,
	})
}

// GetTrend handles GET /cities/{city}/trend.
func (h *Handler) GetTrend(w http.ResponseWriter, r *http.Request) {
	city, ok := h.cityParam(w, r)
	if !ok {
		return
	}
	trend, err := h.analysis.Trend(city)
	if err != nil {
		writeAnalysisError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		models.Trend
		Narrative string `json:"narrative"`
	}{trend, trend.Narrative()})
}

// GetSummary handles GET /cities/{city}/summary.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	city, ok := h.cityParam(w, r)
	if !ok {
		return
	}
	summary, err := h.analysis.Summary(city)
	if err != nil {
		writeAnalysisError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type classifyRequest struct {
	Temperature *float64 `json:"temperature"`
	Month       int      `json:"month"`
}

// PostClassify handles POST /cities/{city}/classify with {"temperature": t, "month": m}.
func (h *Handler) PostClassify(w http.ResponseWriter, r *http.Request) {
	city, ok := h.cityParam(w, r)
	if !ok {
		return
	}
	var req classifyRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "body must be JSON {\"temperature\": number, \"month\": 1-12}")
		return
	}
	if req.Temperature == nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "temperature is required")
		return
	}
	verdict, err := h.analysis.Classify(city, *req.Temperature, time.Month(req.Month))
	if err != nil {
		writeAnalysisError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}

// GetLive handles GET /cities/{city}/live: fetch the current temperature, then classify.
func (h *Handler) GetLive(w http.ResponseWriter, r *http.Request) {
	city, ok := h.cityParam(w, r)
	if !ok {
		return
	}
	verdict, obs, err := h.live.Check(r.Context(), city)
	if err != nil {
		writeAnalysisError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"verdict":     verdict,
		"observation": obs,
	})
}

func (h *Handler) cityParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	city, err := validation.ValidateCity(mux.Vars(r)["city"], h.limits.CityMinLength, h.limits.CityMaxLength)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_CITY", err.Error())
		return "", false
	}
	return city, true
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{
		"dataset":    "healthy",
		"weatherApi": "healthy",
	}
	if !lifecycle.IsDatasetReady() {
		checks["dataset"] = "loading"
	}
	switch {
	case h.live == nil || !h.live.Enabled():
		checks["weatherApi"] = "disabled"
	case result.reason == "error_rate_breach":
		checks["weatherApi"] = "unhealthy"
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing(r.Context()) == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   observability.ServiceName,
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if info, ok := h.analysis.Info(); ok {
		resp["dataset"] = info
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > loading > degraded > healthy.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if !lifecycle.IsDatasetReady() {
		return healthResult{"loading", http.StatusServiceUnavailable, "no_dataset"}
	}
	if h.healthConfig != nil && h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		if traffic.Degraded(h.healthConfig.DegradedWindow, h.healthConfig.DegradedErrorPct, h.healthConfig.DegradedMinSamples) {
			return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeErrorDetails(w, r, status, code, message, nil)
}

func writeErrorDetails(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]interface{}) {
	corrID, _ := r.Context().Value("correlation_id").(string)
	body := map[string]interface{}{
		"code":      code,
		"message":   message,
		"requestId": corrID,
	}
	if len(details) > 0 {
		body["details"] = details
	}
	writeJSON(w, status, map[string]interface{}{"error": body})
}

// writeAnalysisError maps domain and fetch errors to distinct status codes.
// Upstream detail is logged, not returned.
func writeAnalysisError(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *analysis.ValidationError
	switch {
	case errors.As(err, &vErr):
		details := map[string]interface{}{"field": vErr.Field, "reason": vErr.Reason}
		if vErr.Record > 0 {
			details["record"] = vErr.Record
		}
		writeErrorDetails(w, r, http.StatusBadRequest, "INVALID_DATASET", vErr.Error(), details)
	case errors.Is(err, service.ErrNoDataset):
		writeError(w, r, http.StatusServiceUnavailable, "NO_DATASET", "no dataset has been loaded")
	case errors.Is(err, service.ErrUnknownCity):
		writeError(w, r, http.StatusNotFound, "UNKNOWN_CITY", err.Error())
	case errors.Is(err, analysis.ErrInsufficientData):
		writeError(w, r, http.StatusUnprocessableEntity, "INSUFFICIENT_DATA", err.Error())
	case errors.Is(err, analysis.ErrNoBaseline):
		writeError(w, r, http.StatusNotFound, "NO_BASELINE", err.Error())
	case errors.Is(err, analysis.ErrInconclusiveBaseline):
		writeError(w, r, http.StatusUnprocessableEntity, "INCONCLUSIVE_BASELINE", err.Error())
	case errors.Is(err, analysis.ErrInvalidMonth):
		writeError(w, r, http.StatusBadRequest, "INVALID_MONTH", err.Error())
	case errors.Is(err, service.ErrLiveDisabled):
		writeError(w, r, http.StatusServiceUnavailable, "LIVE_DISABLED", "live weather lookups are not configured")
	case errors.Is(err, client.ErrInvalidAPIKey):
		logUpstream(r, err)
		writeError(w, r, http.StatusBadGateway, "INVALID_API_KEY", "weather provider rejected the API key")
	case errors.Is(err, client.ErrLocationNotFound):
		logUpstream(r, err)
		writeError(w, r, http.StatusNotFound, "CITY_NOT_FOUND", "weather provider could not resolve the city")
	case client.IsTransportFailure(err) || errors.Is(err, context.Canceled):
		logUpstream(r, err)
		writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to fetch live temperature")
	default:
		if logger := observability.LoggerFromContext(r.Context()); logger != nil {
			logger.Error("request failed", zap.Error(err))
		}
		writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
	}
}

func logUpstream(r *http.Request, err error) {
	if logger := observability.LoggerFromContext(r.Context()); logger != nil {
		logger.Debug("upstream error", zap.Error(err), zap.String("category", string(client.CategorizeError(err))))
	}
}
