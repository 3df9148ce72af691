package models

import (
	"time"

	"github.com/payment-scanner/internal/types"
)

// ScanRun summarizes one adapter's contribution to one scan tick
type ScanRun struct {
	TickID       string        `json:"tickId"`
	Network      types.Network `json:"network"`
	StartedAt    time.Time     `json:"startedAt"`
	Duration     time.Duration `json:"duration"`
	Fetched      int           `json:"fetched"`
	Persisted    int           `json:"persisted"`
	Created      int           `json:"created"`
	FailedWrites int           `json:"failedWrites"`
	Error        string        `json:"error,omitempty"`
}

// Failed reports whether the adapter itself failed during the tick
func (r *ScanRun) Failed() bool {
	return r.Error != ""
}
