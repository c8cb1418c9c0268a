package models

import "time"

// LiveObservation is the resolved result of a live weather fetch: the only
// data the classifier consumes from the fetch layer.
type LiveObservation struct {
	City        string     `json:"city"`
	Temperature float64    `json:"temperature"`
	Month       time.Month `json:"month"`
	ObservedAt  time.Time  `json:"observedAt"`
	Cached      bool       `json:"cached,omitempty"`
}
