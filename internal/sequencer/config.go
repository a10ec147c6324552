package sequencer

import (
	"errors"
	"fmt"
	"time"

	"github.com/RMahshie/wavescope/internal/instrument"
)

// OutputMode selects what the generator plays on its output channel.
type OutputMode int

const (
	// OutputPulse plays the synthesized windowed burst.
	OutputPulse OutputMode = iota
	// OutputTone plays the generator's built-in sine continuously.
	OutputTone
)

func (m OutputMode) String() string {
	if m == OutputTone {
		return "tone"
	}
	return "pulse"
}

// Output describes the excitation channel.
type Output struct {
	Mode      OutputMode
	Channel   int
	Amplitude float64 // volts
	Offset    float64 // volts
	Frequency float64 // tone mode only, Hz
	Phase     float64 // tone mode only, degrees
}

// Gate is an optional DC level on a second generator channel, held for the
// generator run time on every trigger.
type Gate struct {
	Enabled bool
	Channel int
	Level   float64 // volts
}

// Config holds the parameters of one run. It is passed by value and never
// modified by the sequencer.
type Config struct {
	NumAcq  int  // acquisition rounds
	NbAvg   int  // bursts per round, also the scope average count
	Acquire bool // false arms the generator and holds until cancelled

	TriggerLine int // DIO line wired to the external trigger

	PollInterval     time.Duration
	BurstDelay       time.Duration
	SettleBeforeStop time.Duration
	SettleAfterStop  time.Duration

	ArmSource instrument.TriggerSource
	Wait      float64 // seconds between trigger and output
	RunTime   float64 // seconds of output per trigger

	Output       Output
	Gate         Gate
	Capture      instrument.CaptureConfig
	ScopeTrigger instrument.ScopeTrigger
	View         instrument.View
}

// DefaultConfig returns the parameters of the transducer mapping bench.
func DefaultConfig() Config {
	return Config{
		NumAcq:           90,
		NbAvg:            20,
		Acquire:          true,
		TriggerLine:      0,
		PollInterval:     time.Millisecond,
		BurstDelay:       100 * time.Millisecond,
		SettleBeforeStop: 200 * time.Millisecond,
		SettleAfterStop:  200 * time.Millisecond,
		ArmSource:        instrument.TriggerExternal1,
		RunTime:          5e-4,
		Output: Output{
			Mode:      OutputPulse,
			Channel:   1,
			Amplitude: 20e-3,
		},
		Gate: Gate{Channel: 2, Level: 5},
		Capture: instrument.CaptureConfig{
			Samples:    16000,
			SampleRate: 125e6,
			Channels:   []int{2},
			Mode:       instrument.AcquireRepeated,
		},
		ScopeTrigger: instrument.ScopeTrigger{
			Source:    "Wavegen C1",
			Condition: instrument.Rising,
			Mode:      instrument.TriggerNormal,
			Average:   20,
		},
		View: instrument.View{
			Position: 50e-6,
			Timebase: 12e-5,
		},
	}
}

// CaptureChannel is the scope channel exported each round.
func (c Config) CaptureChannel() int {
	if len(c.Capture.Channels) == 0 {
		return 0
	}
	return c.Capture.Channels[len(c.Capture.Channels)-1]
}

// Validate checks the parameters that would otherwise fail on the instrument.
func (c Config) Validate() error {
	bad := func(field, format string, args ...any) error {
		return &ConfigError{Field: field, Err: fmt.Errorf(format, args...)}
	}
	switch {
	case c.NumAcq < 0:
		return bad("num_acq", "must not be negative, got %d", c.NumAcq)
	case c.NbAvg < 0:
		return bad("nb_avg", "must not be negative, got %d", c.NbAvg)
	case c.Acquire && c.NumAcq > 0 && c.PollInterval <= 0:
		return bad("poll_interval", "must be positive, got %v", c.PollInterval)
	case c.BurstDelay < 0 || c.SettleBeforeStop < 0 || c.SettleAfterStop < 0:
		return bad("delays", "must not be negative")
	case c.RunTime <= 0:
		return bad("run_time", "must be positive, got %g", c.RunTime)
	case c.Wait < 0:
		return bad("wait", "must not be negative, got %g", c.Wait)
	case c.Output.Channel < 1:
		return bad("output.channel", "must be 1 or greater, got %d", c.Output.Channel)
	case c.Output.Mode == OutputTone && c.Output.Frequency <= 0:
		return bad("output.frequency", "must be positive in tone mode, got %g", c.Output.Frequency)
	case c.Gate.Enabled && c.Gate.Channel == c.Output.Channel:
		return bad("gate.channel", "shares channel %d with the output", c.Gate.Channel)
	case c.Capture.Samples <= 0:
		return bad("capture.samples", "must be positive, got %d", c.Capture.Samples)
	case c.Capture.SampleRate <= 0:
		return bad("capture.sample_rate", "must be positive, got %g", c.Capture.SampleRate)
	case len(c.Capture.Channels) == 0:
		return bad("capture.channels", "at least one scope channel is required")
	case c.TriggerLine < 0:
		return bad("trigger_line", "must not be negative, got %d", c.TriggerLine)
	}
	return nil
}

func (c Config) armedTrigger() instrument.GeneratorTrigger {
	return instrument.GeneratorTrigger{
		Source:          c.ArmSource,
		Wait:            c.Wait,
		Run:             c.RunTime,
		Repeat:          instrument.RepeatInfinite,
		RepeatOnTrigger: true,
	}
}

func (c Config) burstTrigger() instrument.GeneratorTrigger {
	return instrument.GeneratorTrigger{
		Source:          instrument.TriggerNone,
		Wait:            c.Wait,
		Run:             c.RunTime,
		Repeat:          1,
		RepeatOnTrigger: false,
	}
}

var errNoWaveform = errors.New("pulse mode needs a synthesized waveform")
