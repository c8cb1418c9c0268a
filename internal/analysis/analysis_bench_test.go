package analysis

import (
	"math"
	"strconv"
	"testing"
	"time"

	"github.com/kjstillabower/climate-anomaly-service/internal/models"
)

// benchReadings builds cities × days of daily readings with a seasonal cycle.
func benchReadings(cities, days int) []models.Reading {
	start := time.Date(2010, time.January, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Reading, 0, cities*days)
	for c := 0; c < cities; c++ {
		city := "City" + strconv.Itoa(c)
		for d := 0; d < days; d++ {
			out = append(out, models.Reading{
				City:        city,
				Timestamp:   start.AddDate(0, 0, d),
				Temperature: 10 + 12*math.Sin(2*math.Pi*float64(d)/365) + float64(d%7),
			})
		}
	}
	return out
}

// BenchmarkRun benchmarks a full recompute over ten cities with ten years of daily data.
func BenchmarkRun(b *testing.B) {
	readings := benchReadings(10, 3650)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Run(readings, Options{Window: 30}); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkRolling benchmarks the trailing-window pass over one city.
func BenchmarkRolling(b *testing.B) {
	series, err := Prepare(benchReadings(1, 3650))
	if err != nil {
		b.Fatal(err)
	}
	city := series["City0"]
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Rolling(city, 30)
	}
}

// BenchmarkClassify benchmarks a single live classification against precomputed baselines.
func BenchmarkClassify(b *testing.B) {
	series, err := Prepare(benchReadings(10, 3650))
	if err != nil {
		b.Fatal(err)
	}
	baselines := ComputeBaselines(series)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Classify(baselines, "City3", 18.5, time.July)
	}
}
