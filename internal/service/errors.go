package service

import "errors"

var (
	// ErrNoDataset is returned by queries issued before the first successful load.
	ErrNoDataset = errors.New("no dataset loaded")
	// ErrUnknownCity is returned when the city does not appear in the loaded dataset.
	ErrUnknownCity = errors.New("unknown city")
	// ErrLiveDisabled is returned by live checks when no weather client is configured.
	ErrLiveDisabled = errors.New("live weather lookups are disabled")
)
