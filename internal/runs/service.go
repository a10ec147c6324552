// Package runs owns the instrument on behalf of callers: it turns a start
// request into a synthesized waveform, an export destination and a bookkept
// run, executes the sequencer, and records every round as it finishes.
package runs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/RMahshie/wavescope/internal/export"
	"github.com/RMahshie/wavescope/internal/instrument"
	"github.com/RMahshie/wavescope/internal/pulse"
	"github.com/RMahshie/wavescope/internal/repository"
	"github.com/RMahshie/wavescope/internal/sequencer"
	"github.com/RMahshie/wavescope/pkg/models"
)

var (
	// ErrBusy is returned when a run already holds the instrument.
	ErrBusy = errors.New("instrument busy with another run")
	// ErrNotRunning is returned when cancelling a run that is not active.
	ErrNotRunning = errors.New("run is not active")
)

// DeviceOpener connects to the instrument for one run.
type DeviceOpener func(ctx context.Context) (instrument.Device, error)

// Settings are the configured run parameters that requests may override.
type Settings struct {
	Sequencer sequencer.Config
	Pulse     pulse.Params
	SavePath  string // directory template, {date} is replaced at run start
	Format    export.Format
}

// StartRequest carries per-run overrides.
type StartRequest struct {
	Label  string
	NumAcq *int
	NbAvg  *int
}

// Service runs acquisitions one at a time.
type Service interface {
	// Start launches a run in the background and returns it in pending state.
	Start(ctx context.Context, req StartRequest) (*models.Run, error)
	// Execute runs to completion on the calling goroutine.
	Execute(ctx context.Context, req StartRequest) (*models.Run, *sequencer.Summary, error)
	Cancel(id string) error
	Wait(id string)
	Get(ctx context.Context, id string) (*models.Run, error)
	List(ctx context.Context, limit int) ([]*models.Run, error)
	Rounds(ctx context.Context, id string) ([]*models.Round, error)
	Shutdown(ctx context.Context) error
}

// Option configures the service.
type Option func(*service)

// WithUploader mirrors every capture to an object store under runs/<id>.
func WithUploader(up export.Uploader) Option {
	return func(s *service) { s.uploader = up }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *service) { s.logger = l }
}

// WithClock overrides time.Now for resolving the save path.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

type activeRun struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

type service struct {
	repo     repository.RunRepository
	open     DeviceOpener
	settings Settings
	uploader export.Uploader
	logger   zerolog.Logger
	now      func() time.Time

	// background runs outlive the request that started them
	base     context.Context
	stopBase context.CancelFunc

	mu     sync.Mutex
	active *activeRun
}

// NewService returns a run service.
func NewService(repo repository.RunRepository, open DeviceOpener, settings Settings, opts ...Option) Service {
	base, stop := context.WithCancel(context.Background())
	s := &service{
		repo:     repo,
		open:     open,
		settings: settings,
		logger:   zerolog.Nop(),
		now:      time.Now,
		base:     base,
		stopBase: stop,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type plan struct {
	run      *models.Run
	cfg      sequencer.Config
	waveform *pulse.Waveform
	sink     sequencer.Exporter
}

// prepare validates the request and creates the run row. Callers hold s.mu.
func (s *service) prepare(ctx context.Context, req StartRequest) (*plan, error) {
	cfg := s.settings.Sequencer
	if req.NumAcq != nil {
		cfg.NumAcq = *req.NumAcq
	}
	if req.NbAvg != nil {
		cfg.NbAvg = *req.NbAvg
		cfg.ScopeTrigger.Average = *req.NbAvg
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var waveform *pulse.Waveform
	if cfg.Output.Mode == sequencer.OutputPulse {
		w, err := s.settings.Pulse.Synthesize()
		if err != nil {
			return nil, &sequencer.ConfigError{Field: "pulse", Err: err}
		}
		waveform = w
	}

	dir := export.ResolveDir(s.settings.SavePath, s.now())
	files, err := export.NewFileExporter(dir, s.settings.Format)
	if err != nil {
		return nil, &sequencer.ConfigError{Field: "export", Err: err}
	}

	run := &models.Run{
		Label:   req.Label,
		Status:  models.RunPending,
		NumAcq:  cfg.NumAcq,
		NbAvg:   cfg.NbAvg,
		SaveDir: dir,
	}
	if err := s.repo.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	var sink sequencer.Exporter = files
	if s.uploader != nil {
		sink = export.Multi{files, export.NewObjectExporter(s.uploader, "runs/"+run.ID, s.settings.Format)}
	}
	return &plan{run: run, cfg: cfg, waveform: waveform, sink: sink}, nil
}

// claim reserves the instrument and prepares a run.
func (s *service) claim(ctx context.Context, req StartRequest, runCtx context.Context) (*plan, *activeRun, context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		return nil, nil, nil, ErrBusy
	}
	p, err := s.prepare(ctx, req)
	if err != nil {
		return nil, nil, nil, err
	}
	runCtx, cancel := context.WithCancel(runCtx)
	a := &activeRun{id: p.run.ID, cancel: cancel, done: make(chan struct{})}
	s.active = a
	return p, a, runCtx, nil
}

func (s *service) release(a *activeRun) {
	s.mu.Lock()
	if s.active == a {
		s.active = nil
	}
	s.mu.Unlock()
	a.cancel()
	close(a.done)
}

func (s *service) Start(ctx context.Context, req StartRequest) (*models.Run, error) {
	p, a, runCtx, err := s.claim(ctx, req, s.base)
	if err != nil {
		return nil, err
	}
	run := *p.run

	go func() {
		defer s.release(a)
		if _, err := s.execute(runCtx, p); err != nil {
			s.logger.Warn().Err(err).Str("run_id", a.id).Msg("Run ended with error")
		}
	}()
	return &run, nil
}

func (s *service) Execute(ctx context.Context, req StartRequest) (*models.Run, *sequencer.Summary, error) {
	p, a, runCtx, err := s.claim(ctx, req, ctx)
	if err != nil {
		return nil, nil, err
	}
	defer s.release(a)

	summary, runErr := s.execute(runCtx, p)
	run, err := s.repo.GetByID(context.WithoutCancel(ctx), p.run.ID)
	if err != nil {
		run = p.run
	}
	return run, summary, runErr
}

func (s *service) execute(ctx context.Context, p *plan) (*sequencer.Summary, error) {
	id := p.run.ID
	logger := s.logger.With().Str("run_id", id).Logger()
	persist := context.WithoutCancel(ctx)

	if err := s.repo.UpdateStatus(persist, id, models.RunRunning); err != nil {
		logger.Error().Err(err).Msg("Failed to mark run as running")
	}
	logger.Info().
		Int("num_acq", p.cfg.NumAcq).
		Int("nb_avg", p.cfg.NbAvg).
		Str("save_dir", p.run.SaveDir).
		Msg("Run started")

	dev, err := s.open(ctx)
	if err != nil {
		err = &sequencer.InstrumentError{Round: -1, Op: "open device", Err: err}
		s.finish(persist, logger, id, nil, err)
		return nil, err
	}
	defer func() {
		if err := dev.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close device")
		}
	}()

	obs := &roundRecorder{ctx: persist, repo: s.repo, runID: id, logger: logger}
	seq := sequencer.New(dev.Instrument(), p.sink,
		sequencer.WithLogger(logger),
		sequencer.WithObserver(obs),
	)
	summary, err := seq.Run(ctx, p.cfg, p.waveform)
	s.finish(persist, logger, id, summary, err)
	return summary, err
}

// finish records the terminal state of a run.
func (s *service) finish(ctx context.Context, logger zerolog.Logger, id string, summary *sequencer.Summary, runErr error) {
	if summary != nil {
		if err := s.repo.UpdateProgress(ctx, id, summary.Completed, summary.Exported); err != nil {
			logger.Error().Err(err).Msg("Failed to record run progress")
		}
	}

	status := StatusOf(runErr)
	var err error
	switch status {
	case models.RunCompleted:
		err = s.repo.UpdateStatus(ctx, id, status)
	case models.RunCancelled:
		err = s.repo.UpdateError(ctx, id, status, "run cancelled")
	default:
		err = s.repo.UpdateError(ctx, id, status, runErr.Error())
	}
	if err != nil {
		logger.Error().Err(err).Msg("Failed to record run status")
	}

	ev := logger.Info()
	if status == models.RunFailed {
		ev = logger.Error().Err(runErr)
	}
	if summary != nil {
		ev = ev.Int("completed", summary.Completed).Int("exported", summary.Exported)
	}
	ev.Str("status", string(status)).Msg("Run finished")
}

// StatusOf maps a sequencer result to the run's terminal status.
func StatusOf(err error) models.RunStatus {
	switch {
	case err == nil:
		return models.RunCompleted
	case errors.Is(err, context.Canceled):
		return models.RunCancelled
	default:
		return models.RunFailed
	}
}

func (s *service) Cancel(id string) error {
	s.mu.Lock()
	a := s.active
	s.mu.Unlock()
	if a == nil || a.id != id {
		if _, err := s.repo.GetByID(context.Background(), id); err != nil {
			return err
		}
		return ErrNotRunning
	}
	a.cancel()
	return nil
}

func (s *service) Wait(id string) {
	s.mu.Lock()
	a := s.active
	s.mu.Unlock()
	if a != nil && a.id == id {
		<-a.done
	}
}

func (s *service) Get(ctx context.Context, id string) (*models.Run, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) List(ctx context.Context, limit int) ([]*models.Run, error) {
	return s.repo.List(ctx, limit)
}

func (s *service) Rounds(ctx context.Context, id string) ([]*models.Round, error) {
	return s.repo.GetRounds(ctx, id)
}

// Shutdown cancels the active run and waits for it to stop the instrument.
func (s *service) Shutdown(ctx context.Context) error {
	s.stopBase()
	s.mu.Lock()
	a := s.active
	s.mu.Unlock()
	if a == nil {
		return nil
	}
	a.cancel()
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// roundRecorder persists rounds as the sequencer reports them.
type roundRecorder struct {
	ctx    context.Context
	repo   repository.RunRepository
	runID  string
	logger zerolog.Logger

	completed, exported int
}

func (r *roundRecorder) StateChanged(round int, state sequencer.State) {
	r.logger.Debug().Int("round", round).Str("state", state.String()).Msg("State changed")
}

func (r *roundRecorder) RoundFinished(res sequencer.RoundResult) {
	r.completed++
	round := &models.Round{
		RunID:       r.runID,
		Index:       res.Round,
		CapturedAt:  res.Timestamp,
		SampleCount: res.Samples,
		Mean:        res.Mean,
		RMS:         res.RMS,
		PeakToPeak:  res.PeakToPeak,
	}
	if res.ExportErr != nil {
		msg := res.ExportErr.Error()
		round.ExportError = &msg
	} else {
		r.exported++
	}

	if err := r.repo.AddRound(r.ctx, round); err != nil {
		r.logger.Error().Err(err).Int("round", res.Round).Msg("Failed to record round")
	}
	if err := r.repo.UpdateProgress(r.ctx, r.runID, r.completed, r.exported); err != nil {
		r.logger.Error().Err(err).Int("round", res.Round).Msg("Failed to record run progress")
	}
}
