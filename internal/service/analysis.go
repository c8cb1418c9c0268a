package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/climate-anomaly-service/internal/analysis"
	"github.com/kjstillabower/climate-anomaly-service/internal/dataset"
	"github.com/kjstillabower/climate-anomaly-service/internal/lifecycle"
	"github.com/kjstillabower/climate-anomaly-service/internal/models"
	"github.com/kjstillabower/climate-anomaly-service/internal/observability"
)

// LoadInfo describes the snapshot currently being served.
type LoadInfo struct {
	Source    string        `json:"source"`
	Readings  int           `json:"readings"`
	Cities    int           `json:"cities"`
	Anomalies int           `json:"anomalies"`
	Window    int           `json:"window"`
	LoadedAt  time.Time     `json:"loadedAt"`
	Duration  time.Duration `json:"-"`
}

// CityInfo is one entry of the city listing.
type CityInfo struct {
	City         string `json:"city"`
	Observations int    `json:"observations"`
}

type snapshot struct {
	result *analysis.Analysis
	info   LoadInfo
}

// AnalysisService serves derived artifacts for the most recently loaded dataset.
// Every load recomputes everything from scratch and swaps the snapshot
// atomically; readers never observe a partially built analysis.
type AnalysisService struct {
	window  int
	logger  *zap.Logger
	loadMu  sync.Mutex
	current atomic.Pointer[snapshot]
}

// NewAnalysisService creates a service using the given rolling window (analysis.DefaultWindow when zero).
func NewAnalysisService(window int, logger *zap.Logger) *AnalysisService {
	if window == 0 {
		window = analysis.DefaultWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalysisService{window: window, logger: logger}
}

// Load reads src and replaces the served snapshot. On any error the previous
// snapshot stays in place.
func (s *AnalysisService) Load(ctx context.Context, src dataset.Source) (LoadInfo, error) {
	readings, err := dataset.Load(ctx, src)
	if err != nil {
		s.recordFailure(src.Name(), err)
		return LoadInfo{}, err
	}
	return s.LoadReadings(ctx, src.Name(), readings)
}

// LoadReadings analyses readings and swaps them in as the served snapshot.
func (s *AnalysisService) LoadReadings(ctx context.Context, source string, readings []models.Reading) (LoadInfo, error) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	if err := ctx.Err(); err != nil {
		return LoadInfo{}, err
	}

	start := time.Now()
	result, err := analysis.Run(readings, analysis.Options{Window: s.window})
	duration := time.Since(start)
	if err != nil {
		s.recordFailure(source, err)
		return LoadInfo{}, fmt.Errorf("analyse %s: %w", source, err)
	}
	observability.AnalysisDuration.Observe(duration.Seconds())

	info := LoadInfo{
		Source:    source,
		Readings:  result.Readings,
		Cities:    len(result.Series),
		Anomalies: result.Anomalies(),
		Window:    result.Window,
		LoadedAt:  time.Now().UTC(),
		Duration:  duration,
	}
	s.current.Store(&snapshot{result: result, info: info})

	observability.DatasetLoadsTotal.WithLabelValues("success").Inc()
	observability.RecordDatasetSnapshot(info.Readings, info.Cities, info.Anomalies)
	lifecycle.SetDatasetReady(true)

	for _, city := range result.Cities() {
		if trendErr, ok := result.TrendErrors[city]; ok {
			s.logger.Warn("trend unavailable", zap.String("city", city), zap.Error(trendErr))
		}
	}
	s.logger.Info("dataset loaded",
		zap.String("source", source),
		zap.Int("readings", info.Readings),
		zap.Int("cities", info.Cities),
		zap.Int("anomalies", info.Anomalies),
		zap.Int("window", info.Window),
		zap.Duration("duration", duration),
	)
	return info, nil
}

func (s *AnalysisService) recordFailure(source string, err error) {
	result := "error"
	if errors.Is(err, analysis.ErrValidation) {
		result = "invalid"
	}
	observability.DatasetLoadsTotal.WithLabelValues(result).Inc()
	s.logger.Warn("dataset load failed", zap.String("source", source), zap.String("result", result), zap.Error(err))
}

func (s *AnalysisService) served() (*snapshot, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, ErrNoDataset
	}
	return snap, nil
}

func (s *AnalysisService) city(city string) (*snapshot, error) {
	snap, err := s.served()
	if err != nil {
		return nil, err
	}
	if _, ok := snap.result.Series[city]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCity, city)
	}
	return snap, nil
}

// Info returns the description of the served snapshot.
func (s *AnalysisService) Info() (LoadInfo, bool) {
	snap := s.current.Load()
	if snap == nil {
		return LoadInfo{}, false
	}
	return snap.info, true
}

// HasCity reports whether city appears in the served snapshot. Matching is exact.
func (s *AnalysisService) HasCity(city string) (bool, error) {
	snap, err := s.served()
	if err != nil {
		return false, err
	}
	_, ok := snap.result.Series[city]
	return ok, nil
}

// Cities lists every city with its observation count, in lexical order.
func (s *AnalysisService) Cities() ([]CityInfo, error) {
	snap, err := s.served()
	if err != nil {
		return nil, err
	}
	names := snap.result.Cities()
	out := make([]CityInfo, 0, len(names))
	for _, name := range names {
		out = append(out, CityInfo{City: name, Observations: len(snap.result.Series[name])})
	}
	return out, nil
}

// Rolling returns the rolling statistics of city in time order. With
// anomaliesOnly, only points flagged as anomalous are returned.
func (s *AnalysisService) Rolling(city string, anomaliesOnly bool) ([]models.RollingPoint, error) {
	snap, err := s.city(city)
	if err != nil {
		return nil, err
	}
	points := snap.result.Rolling[city]
	if !anomaliesOnly {
		return points, nil
	}
	out := make([]models.RollingPoint, 0)
	for _, p := range points {
		if p.Anomalous() {
			out = append(out, p)
		}
	}
	return out, nil
}

// Baselines returns the seasonal baselines of city in season order.
func (s *AnalysisService) Baselines(city string) ([]models.SeasonBaseline, error) {
	snap, err := s.city(city)
	if err != nil {
		return nil, err
	}
	return snap.result.Baselines.ForCity(city), nil
}

// Trend returns the fitted trend of city, or an error wrapping analysis.ErrInsufficientData.
func (s *AnalysisService) Trend(city string) (models.Trend, error) {
	snap, err := s.city(city)
	if err != nil {
		return models.Trend{}, err
	}
	if trendErr, ok := snap.result.TrendErrors[city]; ok {
		return models.Trend{}, trendErr
	}
	return snap.result.Trends[city], nil
}

// Summary returns the descriptive statistics of city.
func (s *AnalysisService) Summary(city string) (models.Summary, error) {
	snap, err := s.city(city)
	if err != nil {
		return models.Summary{}, err
	}
	summary, ok := snap.result.Summaries[city]
	if !ok {
		return models.Summary{}, fmt.Errorf("%w: %s", analysis.ErrInsufficientData, city)
	}
	return summary, nil
}

// Classify judges temperature against the baseline of city for the season of
// month. A city absent from the dataset yields analysis.ErrNoBaseline.
func (s *AnalysisService) Classify(city string, temperature float64, month time.Month) (models.LiveVerdict, error) {
	snap, err := s.served()
	if err != nil {
		return models.LiveVerdict{}, err
	}
	verdict, err := analysis.Classify(snap.result.Baselines, city, temperature, month)
	observability.LiveVerdictsTotal.WithLabelValues(verdictLabel(verdict, err)).Inc()
	return verdict, err
}

func verdictLabel(v models.LiveVerdict, err error) string {
	switch {
	case errors.Is(err, analysis.ErrNoBaseline):
		return "no_baseline"
	case errors.Is(err, analysis.ErrInconclusiveBaseline):
		return "inconclusive"
	case err != nil:
		return "error"
	case v.IsAnomalous:
		return "anomalous"
	default:
		return "normal"
	}
}
