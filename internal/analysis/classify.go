package analysis

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/kjstillabower/climate-anomaly-service/internal/models"
)

// Classify compares a fresh temperature for city, observed in the given calendar
// month, to the city's baseline for the season of that month. The result depends
// only on its arguments.
//
// Errors: ErrInvalidMonth for months outside 1..12, ErrNoBaseline when the
// (city, season) pair is absent, ErrInconclusiveBaseline when the baseline has an
// undefined standard deviation, ErrValidation for a non-finite temperature.
func Classify(baselines Baselines, city string, temperature float64, month time.Month) (models.LiveVerdict, error) {
	if math.IsNaN(temperature) || math.IsInf(temperature, 0) {
		return models.LiveVerdict{}, &ValidationError{Field: "temperature", Reason: "must be a finite number"}
	}
	season, ok := models.SeasonForMonth(month)
	if !ok {
		return models.LiveVerdict{}, fmt.Errorf("%w: %d", ErrInvalidMonth, int(month))
	}
	b, ok := baselines.Lookup(city, season)
	if !ok {
		return models.LiveVerdict{}, fmt.Errorf("%w: %s in %s", ErrNoBaseline, city, season)
	}
	if b.Inconclusive() {
		return models.LiveVerdict{}, fmt.Errorf("%w: %s in %s has %d observation(s)", ErrInconclusiveBaseline, city, season, b.Count)
	}

	std := *b.Std
	anomalous := OutsideBand(temperature, b.Mean, std)
	return models.LiveVerdict{
		City:        city,
		Season:      season,
		Temperature: temperature,
		Mean:        b.Mean,
		Std:         std,
		Lower:       b.Mean - SigmaMultiplier*std,
		Upper:       b.Mean + SigmaMultiplier*std,
		IsAnomalous: anomalous,
		Message:     verdictMessage(temperature, anomalous),
	}, nil
}

func verdictMessage(temperature float64, anomalous bool) string {
	t := strconv.FormatFloat(temperature, 'f', -1, 64)
	if anomalous {
		return "Temperature " + t + "°C is anomalous"
	}
	return "Temperature " + t + "°C is within the normal range"
}
