package sequencer

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/RMahshie/wavescope/pkg/models"
)

// State is a step of the per-round state machine.
type State int

const (
	StateSetup State = iota
	StateWaitingForTrigger
	StateBursting
	StateExporting
	StateSettling
	StateDone
)

func (s State) String() string {
	switch s {
	case StateSetup:
		return "setup"
	case StateWaitingForTrigger:
		return "waiting_for_trigger"
	case StateBursting:
		return "bursting"
	case StateExporting:
		return "exporting"
	case StateSettling:
		return "settling"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// RoundResult describes a captured round.
type RoundResult struct {
	Round      int
	Timestamp  time.Time
	Samples    int
	Mean       float64
	RMS        float64
	PeakToPeak float64
	ExportErr  error // nil when the capture was written
}

func newRoundResult(rec *models.AcquisitionRecord) RoundResult {
	r := RoundResult{
		Round:     rec.Round,
		Timestamp: rec.Timestamp,
		Samples:   len(rec.Samples),
	}
	if len(rec.Samples) == 0 {
		return r
	}
	r.Mean = stat.Mean(rec.Samples, nil)
	r.RMS = math.Sqrt(floats.Dot(rec.Samples, rec.Samples) / float64(len(rec.Samples)))
	r.PeakToPeak = floats.Max(rec.Samples) - floats.Min(rec.Samples)
	return r
}

// Observer is notified synchronously from the run's goroutine. Round is -1
// for setup and done.
type Observer interface {
	StateChanged(round int, state State)
	RoundFinished(result RoundResult)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) StateChanged(int, State)   {}
func (NopObserver) RoundFinished(RoundResult) {}
