package analysis

import (
	"github.com/kjstillabower/climate-anomaly-service/internal/models"
)

// Options configures an analysis pass.
type Options struct {
	// Window is the rolling window length; DefaultWindow when zero.
	Window int
}

// Analysis holds every artifact derived from one dataset snapshot.
// It is built once by Run and must be treated as read-only afterwards.
type Analysis struct {
	Window    int
	Readings  int
	Series    map[string][]models.Reading
	Rolling   map[string][]models.RollingPoint
	Baselines Baselines
	Trends    map[string]models.Trend
	// TrendErrors holds cities whose trend could not be fitted.
	TrendErrors map[string]error
	Summaries   map[string]models.Summary
}

// Run prepares the readings and derives rolling statistics, seasonal baselines,
// trends and summaries. A per-city trend failure is recorded in TrendErrors and
// does not fail the pass; invalid input or options do.
func Run(readings []models.Reading, opts Options) (*Analysis, error) {
	window := opts.Window
	if window == 0 {
		window = DefaultWindow
	}
	series, err := Prepare(readings)
	if err != nil {
		return nil, err
	}

	a := &Analysis{
		Window:      window,
		Readings:    len(readings),
		Series:      series,
		Rolling:     make(map[string][]models.RollingPoint, len(series)),
		Baselines:   ComputeBaselines(series),
		Trends:      make(map[string]models.Trend, len(series)),
		TrendErrors: make(map[string]error),
		Summaries:   make(map[string]models.Summary, len(series)),
	}
	for city, s := range series {
		points, err := Rolling(s, window)
		if err != nil {
			return nil, err
		}
		a.Rolling[city] = points

		trend, err := EstimateTrend(city, s)
		if err != nil {
			a.TrendErrors[city] = err
		} else {
			a.Trends[city] = trend
		}

		summary, err := Describe(city, s)
		if err == nil {
			a.Summaries[city] = summary
		}
	}
	return a, nil
}

// Cities returns the analysed city names in lexical order.
func (a *Analysis) Cities() []string {
	return Cities(a.Series)
}

// Anomalies returns the total number of rolling anomalies across all cities.
func (a *Analysis) Anomalies() int {
	n := 0
	for _, points := range a.Rolling {
		n += CountAnomalies(points)
	}
	return n
}
