// Command wavescope arms the generator, acquires the configured rounds and
// writes every capture to disk. Flags override the environment.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/RMahshie/wavescope/internal/config"
	"github.com/RMahshie/wavescope/internal/instrument/scpi"
	"github.com/RMahshie/wavescope/internal/instrument/sim"
	"github.com/RMahshie/wavescope/internal/logging"
	"github.com/RMahshie/wavescope/internal/repository/memory"
	"github.com/RMahshie/wavescope/internal/runs"
	"github.com/RMahshie/wavescope/internal/sequencer"
)

// flagKeys maps each flag to the configuration key it overrides.
var flagKeys = map[string]string{
	"num-acq":   "NUM_ACQ",
	"nb-avg":    "NB_AVG",
	"acquire":   "ACQUIRE",
	"save-path": "SAVE_PATH",
	"format":    "EXPORT_FORMAT",
	"driver":    "INSTRUMENT_DRIVER",
	"transport": "INSTRUMENT_TRANSPORT",
	"address":   "INSTRUMENT_ADDRESS",
	"baud":      "INSTRUMENT_BAUD",
	"mode":      "OUTPUT_MODE",
	"channel":   "SCOPE_CHANNEL",
	"log-level": "LOG_LEVEL",
	"log-file":  "LOG_FILE",
}

func main() {
	os.Exit(run())
}

func run() int {
	flags := pflag.NewFlagSet("wavescope", pflag.ContinueOnError)
	flags.Int("num-acq", 90, "number of acquisition rounds")
	flags.Int("nb-avg", 20, "bursts averaged per round")
	flags.Bool("acquire", true, "capture rounds; when false the generator stays armed until interrupted")
	flags.String("save-path", "data/2D_Map_{date}-centering", "output directory, {date} is replaced with today's date")
	flags.String("format", "csv", "capture file format: csv or npy")
	flags.String("driver", "sim", "instrument driver: sim or scpi")
	flags.String("transport", "tcp", "scpi transport: tcp or serial")
	flags.String("address", "localhost:5025", "scpi address, host:port or serial device")
	flags.Int("baud", 115200, "serial baud rate")
	flags.String("mode", "pulse", "generator output: pulse or tone")
	flags.Int("channel", 2, "scope channel to capture")
	flags.String("log-level", "info", "log level")
	flags.String("log-file", "", "also write JSON logs to this rotating file")
	label := flags.String("label", "", "run label")
	simPolls := flags.Int("sim-polls", 3, "sim driver: trigger polls per burst")

	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	for name, key := range flagKeys {
		// Only flags set on the command line override the environment.
		if f := flags.Lookup(name); f != nil && f.Changed {
			_ = viper.BindPFlag(key, f)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "wavescope:", err)
		return 2
	}

	closer, err := logging.Setup(logging.Options{
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
		Console: true,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "wavescope:", err)
		return 2
	}
	if closer != nil {
		defer closer.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opener, err := runs.NewDeviceOpener(cfg.Instrument.Driver, scpi.Config{
		Transport: cfg.Instrument.Transport,
		Address:   cfg.Instrument.Address,
		Baud:      cfg.Instrument.Baud,
		Timeout:   cfg.Instrument.Timeout,
	}, sim.Options{PollsBeforeTrigger: *simPolls})
	if err != nil {
		log.Error().Err(err).Msg("Failed to configure instrument")
		return 2
	}

	svc := runs.NewService(memory.NewRunRepository(), opener, runs.Settings{
		Sequencer: cfg.SequencerConfig(),
		Pulse:     cfg.PulseParams(),
		SavePath:  cfg.Export.SavePath,
		Format:    cfg.ExportFormat(),
	}, runs.WithLogger(log.Logger))

	r, summary, err := svc.Execute(ctx, runs.StartRequest{Label: *label})
	if summary != nil {
		for _, exportErr := range summary.ExportErrors {
			log.Warn().Err(exportErr.Err).Int("round", exportErr.Round).Msg("Round not exported")
		}
	}
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		log.Warn().Msg("Interrupted, instrument stopped")
		return 130
	case errors.Is(err, sequencer.ErrConfiguration):
		log.Error().Err(err).Msg("Invalid configuration")
		return 2
	default:
		log.Error().Err(err).Msg("Run failed")
		return 1
	}

	log.Info().
		Str("run_id", r.ID).
		Str("save_dir", r.SaveDir).
		Int("completed", summary.Completed).
		Int("exported", summary.Exported).
		Msg("Run complete")
	if summary.Exported < summary.Completed {
		return 1
	}
	return 0
}
