// Package pulse synthesizes the excitation loaded into the waveform generator:
// a sine burst of a whole number of carrier cycles, tapered by a Hann window
// and padded with zeros up to the generator run time.
package pulse

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/window"
)

// ErrInvalidParams is wrapped by every error Synthesize returns.
var ErrInvalidParams = errors.New("invalid pulse parameters")

// ParamError names the offending parameter.
type ParamError struct {
	Field  string
	Reason string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("pulse: %s %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidParams.
func (e *ParamError) Unwrap() error {
	return ErrInvalidParams
}

// Params holds the synthesis inputs.
type Params struct {
	SampleRate  float64 // samples per second
	Duration    float64 // total buffer length in seconds
	CarrierFreq float64 // Hz
	NumCycles   uint32
}

// OnDuration returns the length of the windowed burst in seconds.
func (p Params) OnDuration() float64 {
	return float64(p.NumCycles) / p.CarrierFreq
}

// Counts returns the number of samples in the burst and in the whole buffer.
func (p Params) Counts() (on, total int) {
	on = int(math.Round(p.SampleRate * p.OnDuration()))
	total = int(math.Round(p.SampleRate * p.Duration))
	return on, total
}

// Validate reports the first parameter that makes synthesis impossible.
func (p Params) Validate() error {
	for _, v := range []struct {
		name  string
		value float64
	}{
		{"sample rate", p.SampleRate},
		{"duration", p.Duration},
		{"carrier frequency", p.CarrierFreq},
	} {
		if math.IsNaN(v.value) || math.IsInf(v.value, 0) {
			return &ParamError{Field: v.name, Reason: "must be finite"}
		}
		if v.value <= 0 {
			return &ParamError{Field: v.name, Reason: fmt.Sprintf("must be positive, got %g", v.value)}
		}
	}
	if p.NumCycles == 0 {
		return &ParamError{Field: "cycle count", Reason: "must be at least 1"}
	}

	on, total := p.Counts()
	switch {
	case total < 1:
		return &ParamError{Field: "duration", Reason: "is shorter than one sample"}
	case on > total:
		return &ParamError{Field: "cycle count",
			Reason: fmt.Sprintf("needs %d samples but the buffer holds %d", on, total)}
	case on < 2:
		// The Hann taper divides by (on - 1).
		return &ParamError{Field: "cycle count",
			Reason: fmt.Sprintf("gives a %d-sample burst, at least 2 are needed for the window", on)}
	}
	return nil
}

// Synthesize builds the waveform described by p.
func (p Params) Synthesize() (*Waveform, error) {
	return Synthesize(p.SampleRate, p.Duration, p.CarrierFreq, p.NumCycles)
}

// Synthesize returns round(samplingRate*totalDuration) samples. The first
// round(samplingRate*numCycles/carrierFreq) of them hold
// sin(2π·carrierFreq·i/samplingRate) times the Hann window over that span;
// the rest are exactly zero.
func Synthesize(samplingRate, totalDuration, carrierFreq float64, numCycles uint32) (*Waveform, error) {
	p := Params{
		SampleRate:  samplingRate,
		Duration:    totalDuration,
		CarrierFreq: carrierFreq,
		NumCycles:   numCycles,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	on, total := p.Counts()

	samples := make([]float64, total)
	burst := samples[:on]
	for i := range burst {
		t := float64(i) / samplingRate
		burst[i] = math.Sin(2 * math.Pi * carrierFreq * t)
	}
	window.Hann(burst)

	return &Waveform{
		samples:    samples,
		sampleRate: samplingRate,
		onSamples:  on,
	}, nil
}

// Window is the Hann weight of sample i in a burst of n samples. It is only
// defined for n >= 2 and returns 0 otherwise.
func Window(i, n int) float64 {
	if n < 2 || i < 0 || i >= n {
		return 0
	}
	return 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
}
