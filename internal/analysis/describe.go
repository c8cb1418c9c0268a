package analysis

import (
	"fmt"
	"math"
	"sort"

	"github.com/kjstillabower/climate-anomaly-service/internal/models"
)

// Describe computes count, mean, sample std, min, quartiles and max of a city's
// temperatures. Quartiles use linear interpolation between closest ranks.
func Describe(city string, series []models.Reading) (models.Summary, error) {
	n := len(series)
	if n == 0 {
		return models.Summary{}, fmt.Errorf("%w: no observations for %q", ErrInsufficientData, city)
	}
	values := make([]float64, n)
	for i, r := range series {
		values[i] = r.Temperature
	}
	mean, std, ok := meanStd(values)
	sort.Float64s(values)

	s := models.Summary{
		City:  city,
		Count: n,
		Mean:  mean,
		Min:   values[0],
		P25:   quantile(values, 0.25),
		P50:   quantile(values, 0.50),
		P75:   quantile(values, 0.75),
		Max:   values[n-1],
		From:  series[0].Timestamp,
		To:    series[n-1].Timestamp,
	}
	if ok {
		s.Std = ptr(std)
	}
	return s, nil
}

// quantile expects sorted, non-empty values.
func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := math.Floor(pos)
	hi := math.Ceil(pos)
	if lo == hi {
		return sorted[int(lo)]
	}
	frac := pos - lo
	return sorted[int(lo)]*(1-frac) + sorted[int(hi)]*frac
}
