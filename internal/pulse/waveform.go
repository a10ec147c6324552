package pulse

// Waveform is an immutable synthesized sample buffer.
type Waveform struct {
	samples    []float64
	sampleRate float64
	onSamples  int
}

// Len returns the total number of samples.
func (w *Waveform) Len() int { return len(w.samples) }

// At returns sample i.
func (w *Waveform) At(i int) float64 { return w.samples[i] }

// OnSamples returns the length of the windowed burst; every later sample is zero.
func (w *Waveform) OnSamples() int { return w.onSamples }

// SampleRate returns the rate the waveform was synthesized at, in samples per second.
func (w *Waveform) SampleRate() float64 { return w.sampleRate }

// Duration returns the buffer length in seconds.
func (w *Waveform) Duration() float64 {
	return float64(len(w.samples)) / w.sampleRate
}

// Samples returns a copy of the buffer.
func (w *Waveform) Samples() []float64 {
	out := make([]float64, len(w.samples))
	copy(out, w.samples)
	return out
}

// Decimate returns every step-th sample, for previews.
func (w *Waveform) Decimate(step int) []float64 {
	if step < 1 {
		step = 1
	}
	out := make([]float64, 0, (len(w.samples)+step-1)/step)
	for i := 0; i < len(w.samples); i += step {
		out = append(out, w.samples[i])
	}
	return out
}
