package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/climate-anomaly-service/internal/cache"
	"github.com/kjstillabower/climate-anomaly-service/internal/client"
	"github.com/kjstillabower/climate-anomaly-service/internal/models"
	"github.com/kjstillabower/climate-anomaly-service/internal/observability"
	"github.com/kjstillabower/climate-anomaly-service/internal/traffic"
)

// LiveService fetches current temperatures using the cache-aside pattern and
// classifies them against the seasonal baselines of the served dataset.
type LiveService struct {
	client    client.WeatherClient
	cache     cache.Cache
	cacheType string
	ttl       time.Duration
	coalescer *coalescer[models.LiveObservation]
	analysis  *AnalysisService
}

// LiveConfig holds the tunables of a LiveService.
type LiveConfig struct {
	TTL             time.Duration
	CacheType       string
	CoalesceEnabled bool
	CoalesceTimeout time.Duration
}

// NewLiveService wires a LiveService. A nil weatherClient disables live checks.
// Coalescing is disabled when CoalesceTimeout is zero.
func NewLiveService(weatherClient client.WeatherClient, c cache.Cache, analysisSvc *AnalysisService, cfg LiveConfig) *LiveService {
	var co *coalescer[models.LiveObservation]
	if cfg.CoalesceEnabled && cfg.CoalesceTimeout > 0 {
		co = newCoalescer[models.LiveObservation](cfg.CoalesceTimeout)
	}
	if cfg.CacheType == "" {
		cfg.CacheType = "in_memory"
	}
	return &LiveService{
		client:    weatherClient,
		cache:     c,
		cacheType: cfg.CacheType,
		ttl:       cfg.TTL,
		coalescer: co,
		analysis:  analysisSvc,
	}
}

// Enabled reports whether a weather client is configured.
func (s *LiveService) Enabled() bool {
	return s.client != nil
}

// Observe returns the current observation for city, from cache when fresh.
func (s *LiveService) Observe(ctx context.Context, city string) (models.LiveObservation, error) {
	if s.client == nil {
		return models.LiveObservation{}, ErrLiveDisabled
	}
	key := cache.Key(city)
	logger := observability.LoggerFromContext(ctx)
	if logger == nil {
		logger = zap.NewNop()
	}

	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			observability.CacheErrorsTotal.WithLabelValues("get").Inc()
			logger.Warn("cache get failed", zap.String("city", city), zap.Error(err))
		case ok:
			observability.CacheHitsTotal.WithLabelValues(s.cacheType).Inc()
			logger.Debug("cache hit", zap.String("city", city))
			cached.Cached = true
			return cached, nil
		}
	}

	logger.Debug("cache miss, fetching upstream", zap.String("city", city))
	obs, err := s.fetch(ctx, key, city)
	if err != nil {
		observability.WeatherAPIErrorsTotal.WithLabelValues(string(client.CategorizeError(err))).Inc()
		if !errors.Is(err, client.ErrLocationNotFound) {
			traffic.RecordError()
		}
		logger.Warn("live fetch failed", zap.String("city", city), zap.Error(err))
		return models.LiveObservation{}, fmt.Errorf("fetch live temperature for %s: %w", city, err)
	}
	traffic.RecordSuccess()

	if s.cache != nil {
		if setErr := s.cache.Set(ctx, key, obs, s.ttl); setErr != nil {
			observability.CacheErrorsTotal.WithLabelValues("set").Inc()
			logger.Warn("cache set failed", zap.String("city", city), zap.Error(setErr))
		}
	}
	return obs, nil
}

func (s *LiveService) fetch(ctx context.Context, key, city string) (models.LiveObservation, error) {
	if s.coalescer == nil {
		return s.client.GetCurrentTemperature(ctx, city)
	}
	obs, shared, err := s.coalescer.Do(ctx, key, func(ctx context.Context) (models.LiveObservation, error) {
		return s.client.GetCurrentTemperature(ctx, city)
	})
	if shared {
		observability.RequestCoalescingHitsTotal.Inc()
	}
	if err != nil {
		return models.LiveObservation{}, err
	}
	// A coalesced result carries the leader's spelling of the city.
	obs.City = city
	return obs, nil
}

// Check fetches the live temperature of city and classifies it. The city must
// appear in the served dataset; nothing is fetched otherwise.
func (s *LiveService) Check(ctx context.Context, city string) (models.LiveVerdict, models.LiveObservation, error) {
	if s.client == nil {
		return models.LiveVerdict{}, models.LiveObservation{}, ErrLiveDisabled
	}
	known, err := s.analysis.HasCity(city)
	if err != nil {
		return models.LiveVerdict{}, models.LiveObservation{}, err
	}
	if !known {
		return models.LiveVerdict{}, models.LiveObservation{}, fmt.Errorf("%w: %s", ErrUnknownCity, city)
	}

	obs, err := s.Observe(ctx, city)
	if err != nil {
		return models.LiveVerdict{}, models.LiveObservation{}, err
	}

	verdict, err := s.analysis.Classify(city, obs.Temperature, obs.Month)
	if err != nil {
		return models.LiveVerdict{}, obs, err
	}
	return verdict, obs, nil
}
