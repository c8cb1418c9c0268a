package analysis

import (
	"math"
	"sort"
	"strings"

	"github.com/kjstillabower/climate-anomaly-service/internal/models"
)

// Prepare validates readings and groups them into per-city series ordered by
// ascending timestamp. Readings with equal timestamps keep their input order.
// A missing season is derived from the timestamp month. The input slice is not modified.
// Any invalid record rejects the whole batch with a *ValidationError.
func Prepare(readings []models.Reading) (map[string][]models.Reading, error) {
	series := make(map[string][]models.Reading)
	for i, r := range readings {
		normalized, err := normalizeReading(r)
		if err != nil {
			err.Record = i + 1
			return nil, err
		}
		series[normalized.City] = append(series[normalized.City], normalized)
	}
	for _, s := range series {
		sort.SliceStable(s, func(i, j int) bool {
			return s[i].Timestamp.Before(s[j].Timestamp)
		})
	}
	return series, nil
}

func normalizeReading(r models.Reading) (models.Reading, *ValidationError) {
	if strings.TrimSpace(r.City) == "" {
		return r, &ValidationError{Field: "city", Reason: "required"}
	}
	if r.Timestamp.IsZero() {
		return r, &ValidationError{Field: "timestamp", Reason: "required"}
	}
	if math.IsNaN(r.Temperature) || math.IsInf(r.Temperature, 0) {
		return r, &ValidationError{Field: "temperature", Reason: "must be a finite number"}
	}
	if r.Season == "" {
		r.Season, _ = models.SeasonForMonth(r.Timestamp.Month())
		return r, nil
	}
	season, ok := models.ParseSeason(string(r.Season))
	if !ok {
		return r, &ValidationError{Field: "season", Reason: "unknown season " + string(r.Season)}
	}
	r.Season = season
	return r, nil
}

// Cities returns the city names of prepared series in lexical order.
func Cities(series map[string][]models.Reading) []string {
	out := make([]string, 0, len(series))
	for city := range series {
		out = append(out, city)
	}
	sort.Strings(out)
	return out
}
