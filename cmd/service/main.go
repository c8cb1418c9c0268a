package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/climate-anomaly-service/internal/analysis"
	"github.com/kjstillabower/climate-anomaly-service/internal/cache"
	"github.com/kjstillabower/climate-anomaly-service/internal/circuitbreaker"
	"github.com/kjstillabower/climate-anomaly-service/internal/client"
	"github.com/kjstillabower/climate-anomaly-service/internal/config"
	"github.com/kjstillabower/climate-anomaly-service/internal/dataset"
	httphandler "github.com/kjstillabower/climate-anomaly-service/internal/http"
	"github.com/kjstillabower/climate-anomaly-service/internal/lifecycle"
	"github.com/kjstillabower/climate-anomaly-service/internal/observability"
	"github.com/kjstillabower/climate-anomaly-service/internal/recovery"
	"github.com/kjstillabower/climate-anomaly-service/internal/service"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	weatherClient := newWeatherClient(cfg, logger)

	var cacheSvc cache.Cache
	var cachePing func(context.Context) error
	var closers []func() error
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		cacheSvc = mc
		cachePing = func(context.Context) error { return mc.Ping() }
		closers = append(closers, mc.Close)
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	case "valkey":
		vc, err := cache.NewValkeyCache(cfg.ValkeyAddrs, cfg.ValkeyPrefix)
		if err != nil {
			logger.Fatal("valkey cache", zap.Error(err))
		}
		cacheSvc = vc
		cachePing = vc.Ping
		closers = append(closers, vc.Close)
		logger.Info("cache backend: valkey", zap.String("addrs", cfg.ValkeyAddrs))
	default:
		cacheSvc = cache.NewInMemoryCache()
		logger.Info("cache backend: in_memory")
	}

	appCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	analysisSvc := service.NewAnalysisService(cfg.RollingWindow, logger)
	if cfg.DatasetPath != "" {
		loadInitialDataset(appCtx, cfg, analysisSvc, logger)
	} else {
		logger.Info("no dataset path configured; waiting for POST /dataset")
	}

	liveSvc := service.NewLiveService(weatherClient, cacheSvc, analysisSvc, service.LiveConfig{
		TTL:             cfg.CacheTTL,
		CacheType:       cfg.CacheBackend,
		CoalesceEnabled: cfg.CoalesceEnabled,
		CoalesceTimeout: cfg.CoalesceTimeout,
	})

	if len(cfg.WarmCities) > 0 {
		if !liveSvc.Enabled() {
			logger.Warn("cache warming skipped; live lookups are disabled", zap.Strings("cities", cfg.WarmCities))
		} else {
			warmer := cache.NewCacheWarmer(liveSvc, logger)
			initialCtx, cancel := context.WithTimeout(appCtx, 30*time.Second)
			if err := warmer.Warm(initialCtx, cfg.WarmCities); err != nil {
				logger.Warn("cache warming failed", zap.Error(err))
			}
			cancel()
			if cfg.WarmInterval > 0 {
				go func() {
					if err := warmer.WarmPeriodic(appCtx, cfg.WarmCities, cfg.WarmInterval); err != nil && !errors.Is(err, context.Canceled) {
						logger.Error("periodic cache warming stopped", zap.Error(err))
					}
				}()
			}
		}
	}

	healthConfig := &httphandler.HealthConfig{
		DegradedWindow:     cfg.DegradedWindow,
		DegradedErrorPct:   cfg.DegradedErrorPct,
		DegradedMinSamples: cfg.DegradedMinSamples,
		CachePing:          cachePing,
	}
	limits := httphandler.Limits{
		CityMinLength:  cfg.CityMinLength,
		CityMaxLength:  cfg.CityMaxLength,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}
	handler := httphandler.NewHandler(analysisSvc, liveSvc, healthConfig, limits, logger)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	router := httphandler.NewRouter(handler, logger, httphandler.RouterConfig{
		Limiter:     limiter,
		LiveTimeout: cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	stopBackground()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	if err := httphandler.WaitForInFlight(shutdownCtx, 50*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error("cache close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}

// newWeatherClient returns nil when no API key is configured, which disables
// the live route.
func newWeatherClient(cfg *config.Config, logger *zap.Logger) client.WeatherClient {
	if !cfg.LiveEnabled() {
		logger.Warn("WEATHER_API_KEY not set; live anomaly checks disabled")
		return nil
	}
	weatherClient, err := client.NewOpenWeatherClientWithRetry(
		cfg.WeatherAPIKey,
		cfg.WeatherAPIURL,
		cfg.WeatherAPITimeout,
		cfg.RetryAttempts,
		cfg.RetryBaseDelay,
		cfg.RetryMaxDelay,
	)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	if cfg.CircuitBreakerEnabled {
		cb := circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			Component:        "weather_api",
			IsFailure:        client.IsTransportFailure,
			OnStateChange: func(component string, from, to circuitbreaker.State) {
				observability.RecordCircuitBreakerTransition(component, from.String(), to.String(), int(to))
				logger.Warn("circuit breaker state change",
					zap.String("component", component),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
		weatherClient.SetCircuitBreaker(cb)
		logger.Info("circuit breaker enabled", zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold), zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()
	if err := weatherClient.ValidateAPIKey(ctx); err != nil {
		logger.Warn("weather API key check failed", zap.Error(err), zap.String("category", string(client.CategorizeError(err))))
	}
	return weatherClient
}

// loadInitialDataset loads the configured dataset. A failure leaves the service
// in the loading state; a dataset can still be uploaded. Failures other than
// invalid data are retried in the background until a snapshot is served.
func loadInitialDataset(ctx context.Context, cfg *config.Config, analysisSvc *service.AnalysisService, logger *zap.Logger) {
	src, err := dataset.NewSource(cfg.DatasetPath, dataset.ObjectStoreConfig{
		Endpoint:  cfg.ObjectStoreEndpoint,
		AccessKey: cfg.ObjectStoreAccessKey,
		SecretKey: cfg.ObjectStoreSecretKey,
		Region:    cfg.ObjectStoreRegion,
	})
	if err != nil {
		logger.Error("dataset source", zap.String("path", cfg.DatasetPath), zap.Error(err))
		return
	}
	const loadTimeout = 5 * time.Minute
	loadCtx, cancel := context.WithTimeout(ctx, loadTimeout)
	_, err = analysisSvc.Load(loadCtx, src)
	cancel()
	if err == nil {
		return
	}
	logger.Error("initial dataset load failed", zap.String("source", src.Name()), zap.Error(err))
	if errors.Is(err, analysis.ErrValidation) || cfg.DatasetRetryInitial <= 0 {
		return
	}

	go func() {
		attempt := func(ctx context.Context) error {
			if _, ok := analysisSvc.Info(); ok {
				return nil
			}
			_, err := analysisSvc.Load(ctx, src)
			return err
		}
		onFailure := func(n int, next time.Duration, err error) {
			logger.Warn("dataset load retry failed", zap.Int("attempt", n), zap.Duration("next_retry", next), zap.Error(err))
		}
		err := recovery.Run(ctx, attempt, cfg.DatasetRetryInitial, cfg.DatasetRetryMax, loadTimeout, onFailure)
		switch {
		case err == nil:
			logger.Info("dataset available after retry", zap.String("source", src.Name()))
		case errors.Is(err, context.Canceled):
		default:
			logger.Error("dataset load retries exhausted; upload a dataset via POST /dataset", zap.Error(err))
		}
	}()
}
