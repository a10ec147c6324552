package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RMahshie/wavescope/internal/export"
	"github.com/RMahshie/wavescope/internal/sequencer"
)

func load(t *testing.T) *Config {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	cfg, err := Load()
	require.NoError(t, err)
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg := load(t)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "sim", cfg.Instrument.Driver)
	assert.Equal(t, 5*time.Second, cfg.Instrument.Timeout)
	assert.Empty(t, cfg.Database.URL)
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:3000"}, cfg.Server.AllowedOrigins)

	on, total := cfg.PulseParams().Counts()
	assert.Equal(t, 2000, on)
	assert.Equal(t, 50000, total)

	seq := cfg.SequencerConfig()
	def := sequencer.DefaultConfig()
	assert.Equal(t, def.NumAcq, seq.NumAcq)
	assert.Equal(t, def.NbAvg, seq.NbAvg)
	assert.Equal(t, def.PollInterval, seq.PollInterval)
	assert.Equal(t, def.BurstDelay, seq.BurstDelay)
	assert.Equal(t, def.Capture, seq.Capture)
	assert.Equal(t, def.View, seq.View)
	assert.Equal(t, sequencer.OutputPulse, seq.Output.Mode)
	assert.InDelta(t, 20e-3, seq.Output.Amplitude, 1e-15)
	assert.NoError(t, seq.Validate())
	assert.Equal(t, export.FormatCSV, cfg.ExportFormat())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("NUM_ACQ", "3")
	t.Setenv("NB_AVG", "5")
	t.Setenv("BURST_DELAY", "10ms")
	t.Setenv("OUTPUT_MODE", "tone")
	t.Setenv("CARRIER_FREQUENCY", "1e6")
	t.Setenv("SCOPE_CHANNEL", "1")
	t.Setenv("EXPORT_FORMAT", "npy")
	t.Setenv("ALLOWED_ORIGINS", "http://a, http://b,")

	cfg := load(t)
	seq := cfg.SequencerConfig()

	assert.Equal(t, 3, seq.NumAcq)
	assert.Equal(t, 5, seq.NbAvg)
	assert.Equal(t, 5, seq.ScopeTrigger.Average)
	assert.Equal(t, 10*time.Millisecond, seq.BurstDelay)
	assert.Equal(t, sequencer.OutputTone, seq.Output.Mode)
	assert.Equal(t, 1e6, seq.Output.Frequency)
	assert.Equal(t, 1, seq.CaptureChannel())
	assert.Equal(t, export.FormatNPY, cfg.ExportFormat())
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.Server.AllowedOrigins)
}

func TestLoad_RejectsUnknownValues(t *testing.T) {
	for key, value := range map[string]string{
		"INSTRUMENT_DRIVER": "visa",
		"OUTPUT_MODE":       "chirp",
		"EXPORT_FORMAT":     "hdf5",
	} {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			viper.Reset()
			t.Cleanup(viper.Reset)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestGetStringOrDefault(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	assert.Equal(t, "fallback", GetStringOrDefault("WAVESCOPE_UNSET", "fallback"))
	viper.Set("WAVESCOPE_SET", "value")
	assert.Equal(t, "value", GetStringOrDefault("WAVESCOPE_SET", "fallback"))
}
