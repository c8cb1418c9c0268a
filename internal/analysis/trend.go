package analysis

import (
	"fmt"

	"github.com/kjstillabower/climate-anomaly-service/internal/models"
)

// EstimateTrend fits an ordinary least-squares line of temperature against the
// zero-based observation index of the city's ordered series. The slope unit is
// degrees per observation. Fewer than two observations fail with ErrInsufficientData.
func EstimateTrend(city string, series []models.Reading) (models.Trend, error) {
	n := len(series)
	if n < 2 {
		return models.Trend{}, fmt.Errorf("%w: trend for %q needs at least 2 observations, have %d", ErrInsufficientData, city, n)
	}

	xMean := float64(n-1) / 2
	var yMean float64
	for _, r := range series {
		yMean += r.Temperature
	}
	yMean /= float64(n)

	var sxy, sxx float64
	for i, r := range series {
		dx := float64(i) - xMean
		sxy += dx * (r.Temperature - yMean)
		sxx += dx * dx
	}
	slope := sxy / sxx

	direction := models.TrendNegative
	if slope > 0 {
		direction = models.TrendPositive
	}
	return models.Trend{
		City:         city,
		Slope:        slope,
		Observations: n,
		Direction:    direction,
	}, nil
}
