package models

import (
	"time"
)

// RunStatus is the lifecycle state of an acquisition run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Finished reports whether the run can no longer change.
func (s RunStatus) Finished() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}

// Run represents one acquisition run (for internal use)
type Run struct {
	ID              string     `json:"id"`
	Label           string     `json:"label,omitempty"`
	Status          RunStatus  `json:"status"`
	NumAcq          int        `json:"num_acq"`
	NbAvg           int        `json:"nb_avg"`
	SaveDir         string     `json:"save_dir"`
	RoundsCompleted int        `json:"rounds_completed"`
	RoundsExported  int        `json:"rounds_exported"`
	ErrorMsg        *string    `json:"error_message,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// Round is the bookkeeping row for one acquisition round.
type Round struct {
	ID          string    `json:"id"`
	RunID       string    `json:"run_id"`
	Index       int       `json:"round"`
	CapturedAt  time.Time `json:"captured_at" doc:"Scope capture completion time"`
	SampleCount int       `json:"sample_count"`
	Mean        float64   `json:"mean" doc:"Mean of the capture in volts"`
	RMS         float64   `json:"rms" doc:"RMS of the capture in volts"`
	PeakToPeak  float64   `json:"peak_to_peak" doc:"Peak-to-peak of the capture in volts"`
	ExportError *string   `json:"export_error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// AcquisitionRecord is one round's capture on its way to storage. It is not
// kept after export.
type AcquisitionRecord struct {
	Round      int
	Channel    int
	SampleRate float64
	Samples    []float64
	Timestamp  time.Time
}
