package analysis

import (
	"fmt"

	"github.com/kjstillabower/climate-anomaly-service/internal/models"
)

// DefaultWindow is the default number of observations in the trailing window.
const DefaultWindow = 30

// Rolling computes the trailing moving average and sample standard deviation over
// window observations of one city's ordered series and flags readings outside the
// 2-sigma band. The window at position i covers [i-window+1, i]; the first window-1
// points have undefined statistics.
func Rolling(series []models.Reading, window int) ([]models.RollingPoint, error) {
	if window < 2 {
		return nil, fmt.Errorf("%w: must be at least 2, got %d", ErrInvalidWindow, window)
	}
	points := make([]models.RollingPoint, len(series))
	values := make([]float64, len(series))
	for i, r := range series {
		values[i] = r.Temperature
	}
	for i, r := range series {
		points[i].Reading = r
		if i+1 < window {
			continue
		}
		mean, std, _ := meanStd(values[i+1-window : i+1])
		points[i].MovingAverage = ptr(mean)
		points[i].MovingStd = ptr(std)
		points[i].IsAnomaly = ptr(OutsideBand(r.Temperature, mean, std))
	}
	return points, nil
}

// CountAnomalies returns the number of defined points flagged as anomalous.
func CountAnomalies(points []models.RollingPoint) int {
	n := 0
	for _, p := range points {
		if p.Anomalous() {
			n++
		}
	}
	return n
}
