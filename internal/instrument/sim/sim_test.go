package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RMahshie/wavescope/internal/instrument"
)

func configured(t *testing.T, opts Options) (*Device, instrument.Instrument) {
	t.Helper()
	d := New(opts)
	inst := d.Instrument()
	require.NoError(t, inst.Validate())
	require.NoError(t, inst.IO.ConfigureInput(0))
	require.NoError(t, inst.Wavegen.ConfigureTrigger(instrument.GeneratorTrigger{
		Source: instrument.TriggerExternal1, Run: 5e-4, Repeat: instrument.RepeatInfinite, RepeatOnTrigger: true,
	}))
	require.NoError(t, inst.Wavegen.LoadCustom(instrument.CustomWaveform{
		Channel: 1, Samples: []float64{0, 1, 0, -1}, SampleRate: 4, Amplitude: 2, Offset: 0.5,
	}))
	require.NoError(t, inst.Scope.ConfigureCapture(instrument.CaptureConfig{Samples: 8, SampleRate: 4, Channels: []int{2}}))
	return d, inst
}

func TestTriggerPattern(t *testing.T) {
	_, inst := configured(t, Options{PollsBeforeTrigger: 2})
	require.NoError(t, inst.IO.Start())

	var reads []bool
	for i := 0; i < 4; i++ {
		high, err := inst.IO.ReadInput(0)
		require.NoError(t, err)
		reads = append(reads, high)
	}
	assert.Equal(t, []bool{false, false, true, true}, reads)

	// A one-shot configuration consumes the edge.
	require.NoError(t, inst.Wavegen.ConfigureTrigger(instrument.GeneratorTrigger{Repeat: 1}))
	high, err := inst.IO.ReadInput(0)
	require.NoError(t, err)
	assert.False(t, high)
}

func TestReadInputErrors(t *testing.T) {
	_, inst := configured(t, Options{})
	_, err := inst.IO.ReadInput(0)
	assert.Error(t, err, "static I/O not started")

	require.NoError(t, inst.IO.Start())
	_, err = inst.IO.ReadInput(3)
	assert.Error(t, err, "line not configured as input")
	assert.Error(t, inst.IO.ConfigureInput(16))
}

func TestStartCounting(t *testing.T) {
	d, inst := configured(t, Options{})
	require.NoError(t, inst.Wavegen.Start())
	require.NoError(t, inst.Wavegen.ConfigureTrigger(instrument.GeneratorTrigger{Repeat: 1}))
	require.NoError(t, inst.Wavegen.Start())
	require.NoError(t, inst.Wavegen.Start())
	require.NoError(t, inst.Wavegen.Stop())

	s := d.Stats()
	assert.Equal(t, 1, s.ArmStarts)
	assert.Equal(t, 2, s.BurstStarts)
	assert.Equal(t, 1, s.WavegenStops)
	wg, _, _ := d.Running()
	assert.False(t, wg)
}

func TestWavegenNeedsWaveform(t *testing.T) {
	inst := New(Options{}).Instrument()
	assert.Error(t, inst.Wavegen.Start())
	assert.Error(t, inst.Wavegen.LoadCustom(instrument.CustomWaveform{Channel: 1}))
}

func TestReadChannel(t *testing.T) {
	clock := time.Date(2024, 10, 15, 7, 30, 12, 345_999_999, time.UTC)
	d, inst := configured(t, Options{Clock: func() time.Time { return clock }})

	_, err := inst.Scope.ReadChannel(2)
	assert.Error(t, err, "scope not started")

	require.NoError(t, inst.Scope.Start())
	_, err = inst.Scope.ReadChannel(1)
	assert.Error(t, err, "channel 1 not enabled")

	data, err := inst.Scope.ReadChannel(2)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 2.5, 0.5, -1.5, 0.5, 0.5, 0.5, 0.5}, data)
	assert.Equal(t, 1, d.Stats().Captures)

	taken, err := inst.Scope.CaptureTime()
	require.NoError(t, err)
	assert.Equal(t, clock.Truncate(time.Millisecond), taken)
}

func TestReadChannelSimpleWaveform(t *testing.T) {
	_, inst := configured(t, Options{})
	require.NoError(t, inst.Wavegen.ConfigureSimple(instrument.SimpleWaveform{
		Channel: 1, Type: instrument.DC, Offset: 0.25,
	}))
	require.NoError(t, inst.Scope.Start())

	data, err := inst.Scope.ReadChannel(2)
	require.NoError(t, err)
	for _, v := range data {
		assert.Equal(t, 0.25, v)
	}
}

func TestNoiseIsSeeded(t *testing.T) {
	read := func() []float64 {
		_, inst := configured(t, Options{Noise: 0.1, Seed: 42})
		require.NoError(t, inst.Scope.Start())
		data, err := inst.Scope.ReadChannel(2)
		require.NoError(t, err)
		return data
	}
	assert.Equal(t, read(), read())
}

func TestClosedDevice(t *testing.T) {
	d, inst := configured(t, Options{})
	require.NoError(t, d.Close())
	assert.Error(t, inst.Wavegen.Start())
	assert.Error(t, inst.Scope.Start())
	_, err := inst.IO.ReadInput(0)
	assert.Error(t, err)
	assert.NoError(t, inst.Scope.Stop())
}
