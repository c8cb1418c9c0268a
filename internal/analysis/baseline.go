package analysis

import (
	"sort"

	"github.com/kjstillabower/climate-anomaly-service/internal/models"
)

// BaselineKey identifies a (city, season) group. City matching is exact and case-sensitive.
type BaselineKey struct {
	City   string
	Season models.Season
}

// Baselines indexes seasonal baselines by (city, season).
type Baselines map[BaselineKey]models.SeasonBaseline

// ComputeBaselines aggregates mean and sample standard deviation of temperature for
// every (city, season) pair present in the prepared series.
func ComputeBaselines(series map[string][]models.Reading) Baselines {
	groups := make(map[BaselineKey][]float64)
	for city, readings := range series {
		for _, r := range readings {
			key := BaselineKey{City: city, Season: r.Season}
			groups[key] = append(groups[key], r.Temperature)
		}
	}

	out := make(Baselines, len(groups))
	for key, temps := range groups {
		mean, std, ok := meanStd(temps)
		b := models.SeasonBaseline{
			City:   key.City,
			Season: key.Season,
			Count:  len(temps),
			Mean:   mean,
		}
		if ok {
			b.Std = ptr(std)
		}
		out[key] = b
	}
	return out
}

// Lookup returns the baseline for (city, season).
func (b Baselines) Lookup(city string, season models.Season) (models.SeasonBaseline, bool) {
	v, ok := b[BaselineKey{City: city, Season: season}]
	return v, ok
}

// ForCity returns the city's baselines in season order (winter, spring, summer, autumn).
func (b Baselines) ForCity(city string) []models.SeasonBaseline {
	var out []models.SeasonBaseline
	for key, v := range b {
		if key.City == city {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Season.Order() < out[j].Season.Order()
	})
	return out
}
