package models

import (
	"fmt"
	"time"
)

// RollingPoint is a reading annotated with its trailing-window statistics.
// MovingAverage, MovingStd and IsAnomaly are nil while the window is incomplete;
// nil means "undefined", not "normal".
type RollingPoint struct {
	Reading
	MovingAverage *float64 `json:"movingAverage"`
	MovingStd     *float64 `json:"movingStd"`
	IsAnomaly     *bool    `json:"isAnomaly"`
}

// Defined reports whether the trailing window was complete at this point.
func (p RollingPoint) Defined() bool {
	return p.MovingAverage != nil && p.MovingStd != nil && p.IsAnomaly != nil
}

// Anomalous reports whether the point is defined and flagged.
func (p RollingPoint) Anomalous() bool {
	return p.IsAnomaly != nil && *p.IsAnomaly
}

// SeasonBaseline holds temperature mean and sample standard deviation for one (city, season).
// Std is nil when the group has a single observation.
type SeasonBaseline struct {
	City   string   `json:"city"`
	Season Season   `json:"season"`
	Count  int      `json:"count"`
	Mean   float64  `json:"meanTemperature"`
	Std    *float64 `json:"stdTemperature"`
}

// Inconclusive reports whether the baseline has no usable standard deviation.
func (b SeasonBaseline) Inconclusive() bool {
	return b.Std == nil
}

// TrendDirection is the narrative classification of a trend slope.
type TrendDirection string

const (
	TrendPositive TrendDirection = "positive"
	// TrendNegative also covers a slope of exactly zero.
	TrendNegative TrendDirection = "negative"
)

// Trend is the OLS slope of temperature against observation index for one city.
// Slope is in degrees per observation, not per calendar day.
type Trend struct {
	City         string         `json:"city"`
	Slope        float64        `json:"slope"`
	Observations int            `json:"observations"`
	Direction    TrendDirection `json:"direction"`
}

// Narrative renders the one-line trend conclusion shown to users.
func (t Trend) Narrative() string {
	return fmt.Sprintf("Based on the linear regression coefficient, the temperature in %s shows a long-term %s trend", t.City, t.Direction)
}

// Summary holds descriptive statistics of a city's temperatures.
// Std is nil for fewer than two observations.
type Summary struct {
	City  string    `json:"city"`
	Count int       `json:"count"`
	Mean  float64   `json:"mean"`
	Std   *float64  `json:"std"`
	Min   float64   `json:"min"`
	P25   float64   `json:"p25"`
	P50   float64   `json:"p50"`
	P75   float64   `json:"p75"`
	Max   float64   `json:"max"`
	From  time.Time `json:"from"`
	To    time.Time `json:"to"`
}

// LiveVerdict is the classification of one fresh reading against its season baseline.
// Derived per query and never stored.
type LiveVerdict struct {
	City        string  `json:"city"`
	Season      Season  `json:"season"`
	Temperature float64 `json:"temperature"`
	Mean        float64 `json:"meanTemperature"`
	Std         float64 `json:"stdTemperature"`
	Lower       float64 `json:"lowerBound"`
	Upper       float64 `json:"upperBound"`
	IsAnomalous bool    `json:"isAnomalous"`
	Message     string  `json:"message"`
}
