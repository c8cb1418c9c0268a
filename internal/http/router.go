package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/climate-anomaly-service/internal/observability"
)

// RouterConfig holds the route-scoped middleware settings.
type RouterConfig struct {
	// Limiter guards the live route; nil disables rate limiting.
	Limiter *rate.Limiter
	// LiveTimeout bounds the live route; zero disables it.
	LiveTimeout time.Duration
}

// NewRouter registers every route on a gorilla/mux router.
func NewRouter(h *Handler, logger *zap.Logger, cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)
	router.HandleFunc("/dataset", h.PostDataset).Methods(http.MethodPost)
	router.HandleFunc("/cities", h.GetCities).Methods(http.MethodGet)

	cities := router.PathPrefix("/cities/{city}").Subrouter()
	cities.HandleFunc("/rolling", h.GetRolling).Methods(http.MethodGet)
	cities.HandleFunc("/baselines", h.GetBaselines).Methods(http.MethodGet)
	cities.HandleFunc("/trend", h.GetTrend).Methods(http.MethodGet)
	cities.HandleFunc("/summary", h.GetSummary).Methods(http.MethodGet)
	cities.HandleFunc("/classify", h.PostClassify).Methods(http.MethodPost)

	live := router.PathPrefix("/cities/{city}").Subrouter()
	live.Use(RateLimitMiddleware(cfg.Limiter))
	live.Use(TimeoutMiddleware(cfg.LiveTimeout))
	live.HandleFunc("/live", h.GetLive).Methods(http.MethodGet)

	return router
}
