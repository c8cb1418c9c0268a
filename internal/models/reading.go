package models

import (
	"strings"
	"time"
)

// Season is one of the four fixed calendar seasons (Northern-hemisphere convention).
type Season string

const (
	SeasonWinter Season = "winter"
	SeasonSpring Season = "spring"
	SeasonSummer Season = "summer"
	SeasonAutumn Season = "autumn"
)

// Seasons lists the seasons in calendar presentation order.
var Seasons = []Season{SeasonWinter, SeasonSpring, SeasonSummer, SeasonAutumn}

// ParseSeason matches s against the season names, ignoring case and surrounding space.
func ParseSeason(s string) (Season, bool) {
	switch Season(strings.ToLower(strings.TrimSpace(s))) {
	case SeasonWinter:
		return SeasonWinter, true
	case SeasonSpring:
		return SeasonSpring, true
	case SeasonSummer:
		return SeasonSummer, true
	case SeasonAutumn:
		return SeasonAutumn, true
	}
	return "", false
}

// SeasonForMonth maps a calendar month to its season:
// Dec-Feb winter, Mar-May spring, Jun-Aug summer, Sep-Nov autumn.
// Returns false for months outside 1..12.
func SeasonForMonth(month time.Month) (Season, bool) {
	switch month {
	case time.December, time.January, time.February:
		return SeasonWinter, true
	case time.March, time.April, time.May:
		return SeasonSpring, true
	case time.June, time.July, time.August:
		return SeasonSummer, true
	case time.September, time.October, time.November:
		return SeasonAutumn, true
	}
	return "", false
}

// Order returns the position of s in Seasons, or len(Seasons) for unknown values.
func (s Season) Order() int {
	for i, v := range Seasons {
		if v == s {
			return i
		}
	}
	return len(Seasons)
}

// Reading is a single daily temperature observation for a city. Immutable once ingested.
type Reading struct {
	City        string    `json:"city"`
	Timestamp   time.Time `json:"timestamp"`
	Temperature float64   `json:"temperature"`
	Season      Season    `json:"season"`
}
