package lifecycle

import "testing"

func TestIsShuttingDown_DefaultFalse(t *testing.T) {
	SetShuttingDown(false)
	if IsShuttingDown() {
		t.Error("IsShuttingDown() = true, want false by default")
	}
}

func TestSetShuttingDown_True(t *testing.T) {
	SetShuttingDown(true)
	defer SetShuttingDown(false)
	if !IsShuttingDown() {
		t.Error("IsShuttingDown() = false after SetShuttingDown(true), want true")
	}
}

func TestSetDatasetReady(t *testing.T) {
	SetDatasetReady(false)
	if IsDatasetReady() {
		t.Error("IsDatasetReady() = true after SetDatasetReady(false)")
	}
	SetDatasetReady(true)
	defer SetDatasetReady(false)
	if !IsDatasetReady() {
		t.Error("IsDatasetReady() = false after SetDatasetReady(true)")
	}
}
