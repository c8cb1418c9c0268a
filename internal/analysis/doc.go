// Package analysis implements the temperature analysis pipeline: per-city series
// preparation, trailing rolling-window anomaly detection, seasonal baselines,
// linear trend estimation and live-reading classification.
//
// Every function is pure: inputs are treated as read-only snapshots, no I/O is
// performed, and derived artifacts are recomputed in full on each call. Callers may
// invoke them concurrently as long as they do not mutate the readings they pass in.
//
// Statistics that cannot be computed from the available data are reported as nil
// (undefined) or as an error, never as a substituted zero.
package analysis
