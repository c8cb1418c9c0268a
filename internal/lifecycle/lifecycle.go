package lifecycle

import "sync/atomic"

var (
	shuttingDown atomic.Bool
	datasetReady atomic.Bool
)

// SetShuttingDown sets the shutdown flag. Call when SIGTERM/SIGINT received.
// Health handler returns 503 with status shutting-down while true.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown returns true if the process is draining and should not receive new traffic.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}

// SetDatasetReady records whether an analysed dataset snapshot is being served.
// Health reports loading until the first successful load.
func SetDatasetReady(v bool) {
	datasetReady.Store(v)
}

// IsDatasetReady returns true once a dataset snapshot has been loaded.
func IsDatasetReady() bool {
	return datasetReady.Load()
}
