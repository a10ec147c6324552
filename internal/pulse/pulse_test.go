package pulse

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesize_ScriptDefaults(t *testing.T) {
	w, err := Synthesize(100e6, 5e-4, 500e3, 10)
	require.NoError(t, err)

	assert.Equal(t, 50000, w.Len())
	assert.Equal(t, 2000, w.OnSamples())
	assert.Equal(t, 0.0, w.At(0))
	assert.Equal(t, 0.0, w.At(2500))
	assert.Equal(t, 100e6, w.SampleRate())
	assert.InDelta(t, 5e-4, w.Duration(), 1e-12)

	for i := w.OnSamples(); i < w.Len(); i++ {
		if w.At(i) != 0 {
			t.Fatalf("sample %d = %v, want exactly 0", i, w.At(i))
		}
	}

	// Peak of the taper sits mid-burst and cannot exceed 1.
	peak := 0.0
	for i := 0; i < w.OnSamples(); i++ {
		peak = math.Max(peak, math.Abs(w.At(i)))
	}
	assert.LessOrEqual(t, peak, 1.0)
	assert.Greater(t, peak, 0.9)
}

func TestSynthesize_MatchesWindowedSine(t *testing.T) {
	const fs, f = 1e6, 50e3
	w, err := Synthesize(fs, 1e-3, f, 4)
	require.NoError(t, err)
	require.Equal(t, 80, w.OnSamples())

	for i := 0; i < w.OnSamples(); i++ {
		want := math.Sin(2*math.Pi*f*float64(i)/fs) * Window(i, w.OnSamples())
		assert.InDelta(t, want, w.At(i), 1e-12, "sample %d", i)
	}
}

func TestSynthesize_RandomValidInputs(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for n := 0; n < 200; n++ {
		fs := 1e4 + rng.Float64()*1e7
		total := 10 + rng.Intn(20000)
		duration := float64(total) / fs
		cycles := uint32(1 + rng.Intn(20))
		onTarget := 3 + rng.Intn(total-4)
		carrier := float64(cycles) * fs / float64(onTarget)

		w, err := Synthesize(fs, duration, carrier, cycles)
		require.NoError(t, err, "fs=%v duration=%v carrier=%v cycles=%d", fs, duration, carrier, cycles)

		wantTotal := int(math.Round(fs * duration))
		wantOn := int(math.Round(fs * float64(cycles) / carrier))
		require.Equal(t, wantTotal, w.Len())
		require.Equal(t, wantOn, w.OnSamples())
		for i := wantOn; i < w.Len(); i++ {
			if w.At(i) != 0 {
				t.Fatalf("case %d: sample %d = %v beyond burst of %d", n, i, w.At(i), wantOn)
			}
		}
	}
}

func TestWindow_EndpointsAndSymmetry(t *testing.T) {
	for _, n := range []int{2, 3, 10, 2000, 2001} {
		assert.InDelta(t, 0.0, Window(0, n), 1e-15)
		assert.InDelta(t, 0.0, Window(n-1, n), 1e-12)
		for i := 0; i < n; i++ {
			assert.InDelta(t, Window(i, n), Window(n-1-i, n), 1e-12, "n=%d i=%d", n, i)
		}
	}
	assert.InDelta(t, 1.0, Window(1000, 2001), 1e-12)
	assert.Equal(t, 0.0, Window(0, 1))
	assert.Equal(t, 0.0, Window(-1, 10))
	assert.Equal(t, 0.0, Window(10, 10))
}

func TestSynthesize_InvalidParams(t *testing.T) {
	tests := []struct {
		name     string
		fs, dur  float64
		carrier  float64
		cycles   uint32
		badField string
	}{
		{"zero sample rate", 0, 5e-4, 500e3, 10, "sample rate"},
		{"negative sample rate", -1, 5e-4, 500e3, 10, "sample rate"},
		{"zero carrier", 100e6, 5e-4, 0, 10, "carrier frequency"},
		{"negative carrier", 100e6, 5e-4, -500e3, 10, "carrier frequency"},
		{"zero duration", 100e6, 0, 500e3, 10, "duration"},
		{"NaN carrier", 100e6, 5e-4, math.NaN(), 10, "carrier frequency"},
		{"infinite rate", math.Inf(1), 5e-4, 500e3, 10, "sample rate"},
		{"no cycles", 100e6, 5e-4, 500e3, 0, "cycle count"},
		{"burst longer than buffer", 100e6, 1e-5, 500e3, 10, "cycle count"},
		{"single-sample burst", 10, 1, 10, 1, "cycle count"},
		{"buffer shorter than a sample", 10, 0.01, 500e3, 1, "duration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := Synthesize(tt.fs, tt.dur, tt.carrier, tt.cycles)
			assert.Nil(t, w)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidParams))

			var pe *ParamError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.badField, pe.Field)
		})
	}
}

func TestParams_Counts(t *testing.T) {
	p := Params{SampleRate: 1e7, Duration: 40e-3, CarrierFreq: 500e3, NumCycles: 20}
	on, total := p.Counts()
	assert.Equal(t, 400, on)
	assert.Equal(t, 400000, total)
	assert.InDelta(t, 4e-5, p.OnDuration(), 1e-18)

	w, err := p.Synthesize()
	require.NoError(t, err)
	assert.Equal(t, total, w.Len())
}

func TestWaveform_SamplesIsACopy(t *testing.T) {
	w, err := Synthesize(1e6, 1e-4, 100e3, 2)
	require.NoError(t, err)

	s := w.Samples()
	before := w.At(5)
	s[5] = 42
	assert.Equal(t, before, w.At(5))

	d := w.Decimate(10)
	assert.Len(t, d, 10)
	assert.Equal(t, w.At(10), d[1])
	assert.Len(t, w.Decimate(0), w.Len())
}
