// Package sim is a software instrument for dry runs and tests. It keeps the
// configuration it receives, answers trigger polls from a fixed pattern and
// synthesizes captures from whatever the generator was told to play.
package sim

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/RMahshie/wavescope/internal/instrument"
)

// Options tune the simulated device.
type Options struct {
	// PollsBeforeTrigger is the number of low reads of the trigger line after
	// each burst before it reads high again. Zero means always high.
	PollsBeforeTrigger int
	// Noise is the standard deviation, in volts, added to every capture sample.
	Noise float64
	Seed  int64
	Clock func() time.Time

	// ReadInputErr, when set, is returned by every trigger poll.
	ReadInputErr error
	// ReadChannelErr, when set, is returned by every capture read.
	ReadChannelErr error
	// ConfigureCaptureErr, when set, is returned by the scope's capture setup.
	ConfigureCaptureErr error
}

// Stats counts what the device was asked to do.
type Stats struct {
	BurstStarts  int // generator starts in one-shot mode
	ArmStarts    int // generator starts in repeating mode
	WavegenStops int
	ScopeStarts  int
	ScopeStops   int
	IOStarts     int
	IOStops      int
	Polls        int
	Captures     int
	Configured   int // configuration calls of any subsystem
}

// Device is a simulated instrument. It is safe for concurrent use.
type Device struct {
	mu    sync.Mutex
	opts  Options
	rng   *rand.Rand
	stats Stats

	trigger        instrument.GeneratorTrigger
	custom         map[int]instrument.CustomWaveform
	simple         map[int]instrument.SimpleWaveform
	wavegenRunning bool

	capture      instrument.CaptureConfig
	scopeTrigger instrument.ScopeTrigger
	view         instrument.View
	scopeRunning bool

	inputs    map[int]bool
	ioRunning bool
	lowPolls  int
	closed    bool
}

var errClosed = errors.New("sim: device closed")

// New returns a simulated device.
func New(opts Options) *Device {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Device{
		opts:   opts,
		rng:    rand.New(rand.NewSource(opts.Seed)),
		custom: make(map[int]instrument.CustomWaveform),
		simple: make(map[int]instrument.SimpleWaveform),
		inputs: make(map[int]bool),
	}
}

// Instrument returns the three subsystems.
func (d *Device) Instrument() instrument.Instrument {
	return instrument.Instrument{
		Wavegen: wavegen{d},
		Scope:   scope{d},
		IO:      staticIO{d},
	}
}

// Close marks the device closed; later calls fail.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Stats returns a snapshot of the call counters.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// GeneratorTrigger returns the current generator trigger configuration.
func (d *Device) GeneratorTrigger() instrument.GeneratorTrigger {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.trigger
}

// Running reports which subsystems are currently started.
func (d *Device) Running() (wavegen, scope, io bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.wavegenRunning, d.scopeRunning, d.ioRunning
}

type wavegen struct{ d *Device }

func (w wavegen) ConfigureTrigger(t instrument.GeneratorTrigger) error {
	d := w.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errClosed
	}
	if t.Repeat < 0 {
		return fmt.Errorf("sim: negative repeat count %d", t.Repeat)
	}
	d.trigger = t
	if t.OneShot() {
		// The external edge has been consumed.
		d.lowPolls = 0
	}
	d.stats.Configured++
	return nil
}

func (w wavegen) LoadCustom(c instrument.CustomWaveform) error {
	d := w.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errClosed
	}
	if len(c.Samples) == 0 || c.SampleRate <= 0 {
		return fmt.Errorf("sim: empty custom waveform on channel %d", c.Channel)
	}
	c.Samples = slices.Clone(c.Samples)
	d.custom[c.Channel] = c
	delete(d.simple, c.Channel)
	d.stats.Configured++
	return nil
}

func (w wavegen) ConfigureSimple(s instrument.SimpleWaveform) error {
	d := w.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errClosed
	}
	d.simple[s.Channel] = s
	delete(d.custom, s.Channel)
	d.stats.Configured++
	return nil
}

func (w wavegen) Start() error {
	d := w.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errClosed
	}
	if len(d.custom) == 0 && len(d.simple) == 0 {
		return errors.New("sim: wavegen started with no waveform")
	}
	if d.trigger.OneShot() {
		d.stats.BurstStarts++
	} else {
		d.stats.ArmStarts++
	}
	d.wavegenRunning = true
	return nil
}

func (w wavegen) Stop() error {
	d := w.d
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.WavegenStops++
	d.wavegenRunning = false
	return nil
}

type staticIO struct{ d *Device }

func (s staticIO) ConfigureInput(line int) error {
	d := s.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errClosed
	}
	if line < 0 || line > 15 {
		return fmt.Errorf("sim: no DIO line %d", line)
	}
	d.inputs[line] = true
	d.stats.Configured++
	return nil
}

func (s staticIO) ReadInput(line int) (bool, error) {
	d := s.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false, errClosed
	}
	if d.opts.ReadInputErr != nil {
		return false, d.opts.ReadInputErr
	}
	if !d.ioRunning {
		return false, errors.New("sim: static I/O not running")
	}
	if !d.inputs[line] {
		return false, fmt.Errorf("sim: DIO%d is not an input", line)
	}
	d.stats.Polls++
	if d.lowPolls < d.opts.PollsBeforeTrigger {
		d.lowPolls++
		return false, nil
	}
	return true, nil
}

func (s staticIO) Start() error {
	d := s.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errClosed
	}
	d.stats.IOStarts++
	d.ioRunning = true
	return nil
}

func (s staticIO) Stop() error {
	d := s.d
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.IOStops++
	d.ioRunning = false
	return nil
}

type scope struct{ d *Device }

func (s scope) ConfigureCapture(c instrument.CaptureConfig) error {
	d := s.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errClosed
	}
	if d.opts.ConfigureCaptureErr != nil {
		return d.opts.ConfigureCaptureErr
	}
	if c.Samples <= 0 || c.SampleRate <= 0 || len(c.Channels) == 0 {
		return fmt.Errorf("sim: invalid capture %+v", c)
	}
	c.Channels = slices.Clone(c.Channels)
	d.capture = c
	d.stats.Configured++
	return nil
}

func (s scope) ConfigureTrigger(t instrument.ScopeTrigger) error {
	d := s.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errClosed
	}
	d.scopeTrigger = t
	d.stats.Configured++
	return nil
}

func (s scope) ConfigureView(v instrument.View) error {
	d := s.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errClosed
	}
	d.view = v
	d.stats.Configured++
	return nil
}

func (s scope) Start() error {
	d := s.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errClosed
	}
	d.stats.ScopeStarts++
	d.scopeRunning = true
	return nil
}

func (s scope) Stop() error {
	d := s.d
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.ScopeStops++
	d.scopeRunning = false
	return nil
}

// ReadChannel returns one record. Every scope channel observes generator
// channel 1.
func (s scope) ReadChannel(channel int) ([]float64, error) {
	d := s.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, errClosed
	}
	if d.opts.ReadChannelErr != nil {
		return nil, d.opts.ReadChannelErr
	}
	if !d.scopeRunning {
		return nil, errors.New("sim: scope not running")
	}
	if !slices.Contains(d.capture.Channels, channel) {
		return nil, fmt.Errorf("sim: scope channel %d not enabled", channel)
	}

	out := make([]float64, d.capture.Samples)
	for k := range out {
		t := float64(k) / d.capture.SampleRate
		out[k] = d.outputAt(1, t)
		if d.opts.Noise > 0 {
			out[k] += d.rng.NormFloat64() * d.opts.Noise
		}
	}
	d.stats.Captures++
	return out, nil
}

func (s scope) CaptureTime() (time.Time, error) {
	d := s.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return time.Time{}, errClosed
	}
	return d.opts.Clock().Truncate(time.Millisecond), nil
}

// outputAt is the generator voltage on channel ch, t seconds after a trigger.
func (d *Device) outputAt(ch int, t float64) float64 {
	if c, ok := d.custom[ch]; ok {
		j := int(t * c.SampleRate)
		if j < len(c.Samples) {
			return c.Amplitude*c.Samples[j] + c.Offset
		}
		return c.Offset
	}
	w, ok := d.simple[ch]
	if !ok {
		return 0
	}
	phase := 2*math.Pi*w.Frequency*t + w.Phase*math.Pi/180
	switch w.Type {
	case instrument.Sine:
		return w.Amplitude*math.Sin(phase) + w.Offset
	case instrument.Square:
		if math.Sin(phase) >= 0 {
			return w.Amplitude + w.Offset
		}
		return -w.Amplitude + w.Offset
	case instrument.Triangle:
		return w.Amplitude*2/math.Pi*math.Asin(math.Sin(phase)) + w.Offset
	default:
		return w.Offset
	}
}
