package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/RMahshie/wavescope/internal/export"
	"github.com/RMahshie/wavescope/internal/instrument"
	"github.com/RMahshie/wavescope/internal/pulse"
	"github.com/RMahshie/wavescope/internal/sequencer"
)

// Config holds all configuration for the application
type Config struct {
	Database    DatabaseConfig
	Server      ServerConfig
	AWS         AWSConfig
	Log         LogConfig
	Instrument  InstrumentConfig
	Pulse       PulseConfig
	Acquisition AcquisitionConfig
	Scope       ScopeConfig
	Export      ExportConfig
}

// DatabaseConfig holds database configuration. An empty URL keeps runs in memory.
type DatabaseConfig struct {
	URL string
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           string
	Env            string
	AllowedOrigins []string
}

// AWSConfig holds AWS/S3 configuration. An empty bucket disables the mirror.
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	S3Bucket        string
	S3Endpoint      string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
	File  string
}

// InstrumentConfig selects and addresses the instrument driver
type InstrumentConfig struct {
	Driver    string // sim or scpi
	Transport string // tcp or serial
	Address   string
	Baud      int
	Timeout   time.Duration
}

// PulseConfig holds the generator output parameters
type PulseConfig struct {
	SampleRate  float64
	RunTime     float64
	CarrierFreq float64
	NumCycles   uint32
	Amplitude   float64
	Offset      float64
	OutputMode  string // pulse or tone
	Phase       float64
	GateEnabled bool
	GateLevel   float64
}

// AcquisitionConfig holds the round loop parameters
type AcquisitionConfig struct {
	NumAcq           int
	NbAvg            int
	Acquire          bool
	TriggerLine      int
	PollInterval     time.Duration
	BurstDelay       time.Duration
	SettleBeforeStop time.Duration
	SettleAfterStop  time.Duration
}

// ScopeConfig holds the capture parameters
type ScopeConfig struct {
	Samples  int
	Rate     float64
	Channel  int
	Position float64
	Timebase float64
}

// ExportConfig holds where and how captures are written
type ExportConfig struct {
	SavePath string // may contain {date}
	Format   string
}

var envKeys = []string{
	"DATABASE_URL", "PORT", "ENVIRONMENT", "ALLOWED_ORIGINS",
	"AWS_REGION", "AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "S3_BUCKET", "S3_ENDPOINT",
	"LOG_LEVEL", "LOG_FILE",
	"INSTRUMENT_DRIVER", "INSTRUMENT_TRANSPORT", "INSTRUMENT_ADDRESS", "INSTRUMENT_BAUD", "INSTRUMENT_TIMEOUT",
	"SAMPLING_RATE", "RUN_TIME", "CARRIER_FREQUENCY", "NUM_CYCLES", "AMPLITUDE", "OFFSET",
	"OUTPUT_MODE", "PHASE", "GATE_ENABLED", "GATE_AMPLITUDE",
	"NUM_ACQ", "NB_AVG", "ACQUIRE", "TRIGGER_LINE",
	"POLL_INTERVAL", "BURST_DELAY", "SETTLE_BEFORE_STOP", "SETTLE_AFTER_STOP",
	"SCOPE_SAMPLES", "SCOPE_RATE", "SCOPE_CHANNEL", "SCOPE_POSITION", "SCOPE_TIMEBASE",
	"SAVE_PATH", "EXPORT_FORMAT",
}

func setDefaults() {
	viper.SetDefault("DATABASE_URL", "")
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("ENVIRONMENT", "dev")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")
	viper.SetDefault("AWS_REGION", "us-east-1")
	viper.SetDefault("AWS_ACCESS_KEY_ID", "")
	viper.SetDefault("AWS_SECRET_ACCESS_KEY", "")
	viper.SetDefault("S3_BUCKET", "")
	viper.SetDefault("S3_ENDPOINT", "")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FILE", "")

	viper.SetDefault("INSTRUMENT_DRIVER", "sim")
	viper.SetDefault("INSTRUMENT_TRANSPORT", "tcp")
	viper.SetDefault("INSTRUMENT_ADDRESS", "localhost:5025")
	viper.SetDefault("INSTRUMENT_BAUD", 115200)
	viper.SetDefault("INSTRUMENT_TIMEOUT", "5s")

	viper.SetDefault("SAMPLING_RATE", 100e6)
	viper.SetDefault("RUN_TIME", 5e-4)
	viper.SetDefault("CARRIER_FREQUENCY", 500e3)
	viper.SetDefault("NUM_CYCLES", 10)
	viper.SetDefault("AMPLITUDE", 20e-3)
	viper.SetDefault("OFFSET", 0.0)
	viper.SetDefault("OUTPUT_MODE", "pulse")
	viper.SetDefault("PHASE", 0.0)
	viper.SetDefault("GATE_ENABLED", false)
	viper.SetDefault("GATE_AMPLITUDE", 5.0)

	viper.SetDefault("NUM_ACQ", 90)
	viper.SetDefault("NB_AVG", 20)
	viper.SetDefault("ACQUIRE", true)
	viper.SetDefault("TRIGGER_LINE", 0)
	viper.SetDefault("POLL_INTERVAL", "1ms")
	viper.SetDefault("BURST_DELAY", "100ms")
	viper.SetDefault("SETTLE_BEFORE_STOP", "200ms")
	viper.SetDefault("SETTLE_AFTER_STOP", "200ms")

	viper.SetDefault("SCOPE_SAMPLES", 16000)
	viper.SetDefault("SCOPE_RATE", 125e6)
	viper.SetDefault("SCOPE_CHANNEL", 2)
	viper.SetDefault("SCOPE_POSITION", 50e-6)
	viper.SetDefault("SCOPE_TIMEBASE", 12e-5)

	viper.SetDefault("SAVE_PATH", "data/2D_Map_{date}-centering")
	viper.SetDefault("EXPORT_FORMAT", "csv")
}

// Load loads configuration from environment variables and .env files.
// Flags bound into viper by the caller take precedence.
func Load() (*Config, error) {
	setDefaults()

	// Read from .env files based on environment
	env := viper.GetString("ENVIRONMENT")
	if env == "" {
		env = "dev" // Use "dev" to match .env.dev filename
	}

	viper.SetConfigName(".env." + env)
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	// Read .env file (ignore error if file doesn't exist)
	_ = viper.ReadInConfig()

	// Environment variables override .env file values
	viper.AutomaticEnv()
	for _, key := range envKeys {
		_ = viper.BindEnv(key)
	}

	var config Config
	config.Database.URL = viper.GetString("DATABASE_URL")
	config.Server.Port = viper.GetString("PORT")
	config.Server.Env = viper.GetString("ENVIRONMENT")
	config.Server.AllowedOrigins = splitList(viper.GetString("ALLOWED_ORIGINS"))
	config.AWS.Region = viper.GetString("AWS_REGION")
	config.AWS.AccessKeyID = viper.GetString("AWS_ACCESS_KEY_ID")
	config.AWS.SecretAccessKey = viper.GetString("AWS_SECRET_ACCESS_KEY")
	config.AWS.S3Bucket = viper.GetString("S3_BUCKET")
	config.AWS.S3Endpoint = viper.GetString("S3_ENDPOINT")
	config.Log.Level = viper.GetString("LOG_LEVEL")
	config.Log.File = viper.GetString("LOG_FILE")

	config.Instrument = InstrumentConfig{
		Driver:    strings.ToLower(viper.GetString("INSTRUMENT_DRIVER")),
		Transport: strings.ToLower(viper.GetString("INSTRUMENT_TRANSPORT")),
		Address:   viper.GetString("INSTRUMENT_ADDRESS"),
		Baud:      viper.GetInt("INSTRUMENT_BAUD"),
		Timeout:   viper.GetDuration("INSTRUMENT_TIMEOUT"),
	}
	config.Pulse = PulseConfig{
		SampleRate:  viper.GetFloat64("SAMPLING_RATE"),
		RunTime:     viper.GetFloat64("RUN_TIME"),
		CarrierFreq: viper.GetFloat64("CARRIER_FREQUENCY"),
		NumCycles:   viper.GetUint32("NUM_CYCLES"),
		Amplitude:   viper.GetFloat64("AMPLITUDE"),
		Offset:      viper.GetFloat64("OFFSET"),
		OutputMode:  strings.ToLower(viper.GetString("OUTPUT_MODE")),
		Phase:       viper.GetFloat64("PHASE"),
		GateEnabled: viper.GetBool("GATE_ENABLED"),
		GateLevel:   viper.GetFloat64("GATE_AMPLITUDE"),
	}
	config.Acquisition = AcquisitionConfig{
		NumAcq:           viper.GetInt("NUM_ACQ"),
		NbAvg:            viper.GetInt("NB_AVG"),
		Acquire:          viper.GetBool("ACQUIRE"),
		TriggerLine:      viper.GetInt("TRIGGER_LINE"),
		PollInterval:     viper.GetDuration("POLL_INTERVAL"),
		BurstDelay:       viper.GetDuration("BURST_DELAY"),
		SettleBeforeStop: viper.GetDuration("SETTLE_BEFORE_STOP"),
		SettleAfterStop:  viper.GetDuration("SETTLE_AFTER_STOP"),
	}
	config.Scope = ScopeConfig{
		Samples:  viper.GetInt("SCOPE_SAMPLES"),
		Rate:     viper.GetFloat64("SCOPE_RATE"),
		Channel:  viper.GetInt("SCOPE_CHANNEL"),
		Position: viper.GetFloat64("SCOPE_POSITION"),
		Timebase: viper.GetFloat64("SCOPE_TIMEBASE"),
	}
	config.Export = ExportConfig{
		SavePath: viper.GetString("SAVE_PATH"),
		Format:   viper.GetString("EXPORT_FORMAT"),
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Debug().
		Str("env", config.Server.Env).
		Str("driver", config.Instrument.Driver).
		Strs("allowed_origins", config.Server.AllowedOrigins).
		Msg("Configuration loaded")

	return &config, nil
}

func (c *Config) validate() error {
	switch c.Instrument.Driver {
	case "sim", "scpi":
	default:
		return fmt.Errorf("INSTRUMENT_DRIVER must be sim or scpi, got %q", c.Instrument.Driver)
	}
	switch c.Pulse.OutputMode {
	case "pulse", "tone":
	default:
		return fmt.Errorf("OUTPUT_MODE must be pulse or tone, got %q", c.Pulse.OutputMode)
	}
	if _, err := export.ParseFormat(c.Export.Format); err != nil {
		return fmt.Errorf("EXPORT_FORMAT: %w", err)
	}
	return nil
}

// PulseParams returns the synthesis inputs. The buffer spans the generator
// run time.
func (c *Config) PulseParams() pulse.Params {
	return pulse.Params{
		SampleRate:  c.Pulse.SampleRate,
		Duration:    c.Pulse.RunTime,
		CarrierFreq: c.Pulse.CarrierFreq,
		NumCycles:   c.Pulse.NumCycles,
	}
}

// SequencerConfig builds the run parameters, starting from the bench defaults.
func (c *Config) SequencerConfig() sequencer.Config {
	cfg := sequencer.DefaultConfig()

	cfg.NumAcq = c.Acquisition.NumAcq
	cfg.NbAvg = c.Acquisition.NbAvg
	cfg.Acquire = c.Acquisition.Acquire
	cfg.TriggerLine = c.Acquisition.TriggerLine
	cfg.PollInterval = c.Acquisition.PollInterval
	cfg.BurstDelay = c.Acquisition.BurstDelay
	cfg.SettleBeforeStop = c.Acquisition.SettleBeforeStop
	cfg.SettleAfterStop = c.Acquisition.SettleAfterStop

	cfg.RunTime = c.Pulse.RunTime
	cfg.Output.Amplitude = c.Pulse.Amplitude
	cfg.Output.Offset = c.Pulse.Offset
	if c.Pulse.OutputMode == "tone" {
		cfg.Output.Mode = sequencer.OutputTone
		cfg.Output.Frequency = c.Pulse.CarrierFreq
		cfg.Output.Phase = c.Pulse.Phase
	}
	cfg.Gate.Enabled = c.Pulse.GateEnabled
	cfg.Gate.Level = c.Pulse.GateLevel

	cfg.Capture.Samples = c.Scope.Samples
	cfg.Capture.SampleRate = c.Scope.Rate
	cfg.Capture.Channels = []int{c.Scope.Channel}
	cfg.ScopeTrigger.Average = c.Acquisition.NbAvg
	cfg.View = instrument.View{Position: c.Scope.Position, Timebase: c.Scope.Timebase}
	return cfg
}

// ExportFormat returns the parsed export format.
func (c *Config) ExportFormat() export.Format {
	f, _ := export.ParseFormat(c.Export.Format)
	return f
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// GetStringOrDefault returns the value from viper if set, otherwise returns the default
func GetStringOrDefault(envVar, def string) string {
	if viper.IsSet(envVar) {
		return viper.GetString(envVar)
	}
	return def
}
