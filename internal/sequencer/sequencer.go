// Package sequencer drives the acquisition loop: arm the generator on the
// external trigger, then for each round wait for the trigger line, fire the
// averaging bursts, read and export one scope capture, and let the scope
// settle before the next round.
package sequencer

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/RMahshie/wavescope/internal/instrument"
	"github.com/RMahshie/wavescope/internal/pulse"
	"github.com/RMahshie/wavescope/pkg/models"
)

// Exporter persists one round's capture.
type Exporter interface {
	Export(ctx context.Context, rec *models.AcquisitionRecord) error
}

// Summary is the outcome of a run.
type Summary struct {
	Completed    int // rounds whose capture was read
	Exported     int // rounds whose capture was written without error
	ExportErrors []*ExportError
}

// Sequencer runs acquisition rounds against one instrument. The instrument is
// owned exclusively for the duration of Run.
type Sequencer struct {
	inst     instrument.Instrument
	sink     Exporter
	logger   zerolog.Logger
	observer Observer
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithLogger sets the logger; the default discards output.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Sequencer) { s.logger = l }
}

// WithObserver registers an observer of state changes and finished rounds.
func WithObserver(o Observer) Option {
	return func(s *Sequencer) { s.observer = o }
}

// New returns a sequencer for inst writing captures to sink.
func New(inst instrument.Instrument, sink Exporter, opts ...Option) *Sequencer {
	s := &Sequencer{
		inst:     inst,
		sink:     sink,
		logger:   zerolog.Nop(),
		observer: NopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run is shorthand for New(inst, sink).Run(ctx, cfg, waveform).
func Run(ctx context.Context, cfg Config, waveform *pulse.Waveform, inst instrument.Instrument, sink Exporter) (*Summary, error) {
	return New(inst, sink).Run(ctx, cfg, waveform)
}

// Run configures the instrument, arms the generator and performs cfg.NumAcq
// rounds. Export failures are collected in the summary; instrument failures
// and cancellation end the run early. Once configuration has begun, the
// generator, scope and static I/O are each stopped exactly once before Run
// returns, whatever the outcome.
func (s *Sequencer) Run(ctx context.Context, cfg Config, waveform *pulse.Waveform) (summary *Summary, err error) {
	if err := s.inst.Validate(); err != nil {
		return nil, &InstrumentError{Round: -1, Op: "check instruments", Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Output.Mode == OutputPulse && waveform == nil {
		return nil, &ConfigError{Field: "waveform", Err: errNoWaveform}
	}
	if s.sink == nil && cfg.Acquire && cfg.NumAcq > 0 {
		return nil, &ConfigError{Field: "exporter", Err: errors.New("no exporter for captures")}
	}

	summary = &Summary{}
	defer func() {
		s.observer.StateChanged(-1, StateDone)
		if stopErr := s.shutdown(); stopErr != nil {
			s.logger.Error().Err(stopErr).Msg("Failed to stop instrument")
			if err == nil {
				err = stopErr
			}
		}
	}()

	s.observer.StateChanged(-1, StateSetup)
	if err := s.setup(cfg, waveform); err != nil {
		return summary, err
	}

	if !cfg.Acquire {
		s.logger.Info().Str("output", cfg.Output.Mode.String()).Msg("Generator armed, acquisition disabled; holding until cancelled")
		<-ctx.Done()
		return summary, nil
	}

	start := time.Now()
	for round := 0; round < cfg.NumAcq; round++ {
		if err := ctx.Err(); err != nil {
			s.logger.Warn().Int("round", round).Msg("Run cancelled between rounds")
			return summary, err
		}
		if err := s.round(ctx, cfg, round, summary); err != nil {
			return summary, err
		}
	}

	s.logger.Info().
		Int("rounds", summary.Completed).
		Int("exported", summary.Exported).
		Int("export_errors", len(summary.ExportErrors)).
		Dur("elapsed", time.Since(start)).
		Msg("Acquisition finished")
	return summary, nil
}

func (s *Sequencer) setup(cfg Config, waveform *pulse.Waveform) error {
	wg, sc, io := s.inst.Wavegen, s.inst.Scope, s.inst.IO
	fail := func(op string, err error) error {
		return &InstrumentError{Round: -1, Op: op, Err: err}
	}

	if err := io.ConfigureInput(cfg.TriggerLine); err != nil {
		return fail("configure trigger input", err)
	}
	if err := wg.ConfigureTrigger(cfg.armedTrigger()); err != nil {
		return fail("configure generator trigger", err)
	}

	switch cfg.Output.Mode {
	case OutputTone:
		if err := wg.ConfigureSimple(instrument.SimpleWaveform{
			Channel:   cfg.Output.Channel,
			Type:      instrument.Sine,
			Frequency: cfg.Output.Frequency,
			Amplitude: cfg.Output.Amplitude,
			Offset:    cfg.Output.Offset,
			Phase:     cfg.Output.Phase,
		}); err != nil {
			return fail("configure tone", err)
		}
	default:
		if err := wg.LoadCustom(instrument.CustomWaveform{
			Channel:    cfg.Output.Channel,
			Samples:    waveform.Samples(),
			SampleRate: waveform.SampleRate(),
			Amplitude:  cfg.Output.Amplitude,
			Offset:     cfg.Output.Offset,
			Frequency:  1 / cfg.RunTime,
		}); err != nil {
			return fail("load custom waveform", err)
		}
	}

	if cfg.Gate.Enabled {
		if err := wg.ConfigureSimple(instrument.SimpleWaveform{
			Channel: cfg.Gate.Channel,
			Type:    instrument.DC,
			Offset:  cfg.Gate.Level,
		}); err != nil {
			return fail("configure gate", err)
		}
	}

	if err := sc.ConfigureCapture(cfg.Capture); err != nil {
		return fail("configure capture", err)
	}
	if err := sc.ConfigureTrigger(cfg.ScopeTrigger); err != nil {
		return fail("configure scope trigger", err)
	}
	if err := sc.ConfigureView(cfg.View); err != nil {
		return fail("configure view", err)
	}

	if err := wg.Start(); err != nil {
		return fail("start generator", err)
	}
	if err := sc.Start(); err != nil {
		return fail("start scope", err)
	}
	if err := io.Start(); err != nil {
		return fail("start static I/O", err)
	}

	ev := s.logger.Info().
		Str("output", cfg.Output.Mode.String()).
		Str("arm_source", cfg.ArmSource.String()).
		Float64("run_time", cfg.RunTime)
	if waveform != nil && cfg.Output.Mode == OutputPulse {
		ev = ev.Int("samples", waveform.Len()).Int("samples_on", waveform.OnSamples())
	}
	ev.Msg("Instrument configured and armed")
	return nil
}

func (s *Sequencer) round(ctx context.Context, cfg Config, round int, summary *Summary) error {
	log := s.logger.With().Int("round", round).Logger()
	log.Info().Msg("Data acquisition")

	s.observer.StateChanged(round, StateWaitingForTrigger)
	if err := s.waitForTrigger(ctx, cfg, round); err != nil {
		return err
	}
	log.Info().Int("line", cfg.TriggerLine).Msg("Trigger input high")

	s.observer.StateChanged(round, StateBursting)
	if err := s.burst(ctx, cfg, round); err != nil {
		return err
	}

	s.observer.StateChanged(round, StateExporting)
	rec, err := s.capture(cfg, round)
	if err != nil {
		return err
	}
	summary.Completed++
	result := newRoundResult(rec)

	if err := s.sink.Export(ctx, rec); err != nil {
		exportErr := &ExportError{Round: round, Err: err}
		summary.ExportErrors = append(summary.ExportErrors, exportErr)
		result.ExportErr = exportErr
		log.Error().Err(err).Msg("Export failed, continuing with next round")
	} else {
		summary.Exported++
		log.Info().Time("captured_at", rec.Timestamp).Int("samples", len(rec.Samples)).Msg("Acquisition done")
	}
	s.observer.RoundFinished(result)

	s.observer.StateChanged(round, StateSettling)
	return s.settle(ctx, round, cfg)
}

// waitForTrigger polls the trigger line until it reads high.
func (s *Sequencer) waitForTrigger(ctx context.Context, cfg Config, round int) error {
	for polls := 0; ; polls++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		high, err := s.inst.IO.ReadInput(cfg.TriggerLine)
		if err != nil {
			return &InstrumentError{Round: round, Op: "read trigger input", Err: err}
		}
		if high {
			s.logger.Debug().Int("round", round).Int("polls", polls).Msg("Trigger observed")
			return nil
		}
		if err := sleep(ctx, cfg.PollInterval); err != nil {
			return err
		}
	}
}

// burst fires NbAvg one-shot runs, then restores the armed trigger
// configuration so the next external edge re-triggers the generator.
func (s *Sequencer) burst(ctx context.Context, cfg Config, round int) error {
	wg := s.inst.Wavegen
	if err := wg.ConfigureTrigger(cfg.burstTrigger()); err != nil {
		return &InstrumentError{Round: round, Op: "switch generator to one-shot", Err: err}
	}
	for j := 0; j < cfg.NbAvg; j++ {
		if err := wg.Start(); err != nil {
			return &InstrumentError{Round: round, Op: "start burst", Err: err}
		}
		if err := sleep(ctx, cfg.BurstDelay); err != nil {
			return err
		}
	}

	if err := wg.Stop(); err != nil {
		return &InstrumentError{Round: round, Op: "stop generator", Err: err}
	}
	if err := wg.ConfigureTrigger(cfg.armedTrigger()); err != nil {
		return &InstrumentError{Round: round, Op: "re-arm generator trigger", Err: err}
	}
	if err := wg.Start(); err != nil {
		return &InstrumentError{Round: round, Op: "restart generator", Err: err}
	}
	return nil
}

func (s *Sequencer) capture(cfg Config, round int) (*models.AcquisitionRecord, error) {
	ch := cfg.CaptureChannel()
	data, err := s.inst.Scope.ReadChannel(ch)
	if err != nil {
		return nil, &InstrumentError{Round: round, Op: "read scope channel", Err: err}
	}
	taken, err := s.inst.Scope.CaptureTime()
	if err != nil {
		return nil, &InstrumentError{Round: round, Op: "read capture time", Err: err}
	}
	return &models.AcquisitionRecord{
		Round:      round,
		Channel:    ch,
		SampleRate: cfg.Capture.SampleRate,
		Samples:    data,
		Timestamp:  taken.Truncate(time.Millisecond),
	}, nil
}

// settle restarts the scope so its buffer is clear for the next round.
func (s *Sequencer) settle(ctx context.Context, round int, cfg Config) error {
	if err := sleep(ctx, cfg.SettleBeforeStop); err != nil {
		return err
	}
	if err := s.inst.Scope.Stop(); err != nil {
		return &InstrumentError{Round: round, Op: "stop scope", Err: err}
	}
	if err := sleep(ctx, cfg.SettleAfterStop); err != nil {
		return err
	}
	if err := s.inst.Scope.Start(); err != nil {
		return &InstrumentError{Round: round, Op: "restart scope", Err: err}
	}
	return nil
}

// shutdown stops every subsystem once, continuing past failures.
func (s *Sequencer) shutdown() error {
	var errs []error
	if err := s.inst.Scope.Stop(); err != nil {
		errs = append(errs, &InstrumentError{Round: -1, Op: "stop scope", Err: err})
	}
	if err := s.inst.Wavegen.Stop(); err != nil {
		errs = append(errs, &InstrumentError{Round: -1, Op: "stop generator", Err: err})
	}
	if err := s.inst.IO.Stop(); err != nil {
		errs = append(errs, &InstrumentError{Round: -1, Op: "stop static I/O", Err: err})
	}
	return errors.Join(errs...)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
