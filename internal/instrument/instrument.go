// Package instrument defines the capabilities the acquisition sequencer needs
// from a combined waveform generator, oscilloscope and static digital I/O
// device. Drivers live in the sim and scpi subpackages.
package instrument

import (
	"errors"
	"fmt"
	"time"
)

// ErrMissingInstrument is returned when one of the three subsystems is absent.
var ErrMissingInstrument = errors.New("instrument not available")

// Wavegen is the waveform generator.
type Wavegen interface {
	ConfigureTrigger(t GeneratorTrigger) error
	LoadCustom(w CustomWaveform) error
	ConfigureSimple(w SimpleWaveform) error
	Start() error
	Stop() error
}

// DigitalIO is the static I/O block used to watch the external trigger line.
type DigitalIO interface {
	ConfigureInput(line int) error
	ReadInput(line int) (bool, error)
	Start() error
	Stop() error
}

// Scope is the oscilloscope.
type Scope interface {
	ConfigureCapture(c CaptureConfig) error
	ConfigureTrigger(t ScopeTrigger) error
	ConfigureView(v View) error
	Start() error
	Stop() error
	ReadChannel(channel int) ([]float64, error)
	CaptureTime() (time.Time, error)
}

// Instrument bundles the subsystems of one device.
type Instrument struct {
	Wavegen Wavegen
	Scope   Scope
	IO      DigitalIO
}

// Validate checks that every subsystem is present.
func (in Instrument) Validate() error {
	var missing []string
	if in.Wavegen == nil {
		missing = append(missing, "wavegen")
	}
	if in.Scope == nil {
		missing = append(missing, "scope")
	}
	if in.IO == nil {
		missing = append(missing, "static I/O")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: open %v", ErrMissingInstrument, missing)
	}
	return nil
}

// Device is an opened driver. Close releases the connection.
type Device interface {
	Instrument() Instrument
	Close() error
}
