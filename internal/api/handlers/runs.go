package handlers

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"

	"github.com/RMahshie/wavescope/internal/export"
	"github.com/RMahshie/wavescope/internal/pulse"
	"github.com/RMahshie/wavescope/internal/repository"
	"github.com/RMahshie/wavescope/internal/runs"
	"github.com/RMahshie/wavescope/internal/sequencer"
	"github.com/RMahshie/wavescope/internal/storage"
	"github.com/RMahshie/wavescope/pkg/models"
)

const (
	defaultPreviewPoints = 1000
	// maxPreviewSamples bounds the buffer synthesized for a preview.
	maxPreviewSamples = 4_000_000
)

// RunHandler handles run-related HTTP requests
type RunHandler struct {
	svc       runs.Service
	s3Service storage.Service // nil when captures are not mirrored
	pulse     pulse.Params
	format    export.Format
}

// NewRunHandler creates a new run handler. s3Service may be nil.
func NewRunHandler(svc runs.Service, s3Service storage.Service, defaults pulse.Params, format export.Format) *RunHandler {
	return &RunHandler{
		svc:       svc,
		s3Service: s3Service,
		pulse:     defaults,
		format:    format,
	}
}

// StartRun starts an acquisition run in the background
func (h *RunHandler) StartRun(ctx context.Context, req *models.StartRunRequest) (*models.RunResponse, error) {
	log.Info().Str("label", req.Body.Label).Msg("Start run request received")

	run, err := h.svc.Start(ctx, runs.StartRequest{
		Label:  req.Body.Label,
		NumAcq: req.Body.NumAcq,
		NbAvg:  req.Body.NbAvg,
	})
	if err != nil {
		return nil, runError("Failed to start run", err)
	}

	log.Info().Str("runID", run.ID).Int("num_acq", run.NumAcq).Msg("Run started")
	return &models.RunResponse{Body: runBody(run)}, nil
}

// GetRun returns the current status of a run
func (h *RunHandler) GetRun(ctx context.Context, req *models.GetRunRequest) (*models.RunResponse, error) {
	run, err := h.svc.Get(ctx, req.ID)
	if err != nil {
		return nil, runError("Failed to get run", err)
	}
	return &models.RunResponse{Body: runBody(run)}, nil
}

// ListRuns returns recent runs
func (h *RunHandler) ListRuns(ctx context.Context, req *models.ListRunsRequest) (*models.ListRunsResponse, error) {
	list, err := h.svc.List(ctx, req.Limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list runs", err)
	}
	resp := &models.ListRunsResponse{}
	resp.Body.Runs = make([]models.RunResponseBody, 0, len(list))
	for _, run := range list {
		resp.Body.Runs = append(resp.Body.Runs, runBody(run))
	}
	return resp, nil
}

// CancelRun aborts an active run
func (h *RunHandler) CancelRun(ctx context.Context, req *models.CancelRunRequest) (*models.CancelRunResponse, error) {
	log.Info().Str("runID", req.ID).Msg("Cancel request received")
	if err := h.svc.Cancel(req.ID); err != nil {
		return nil, runError("Failed to cancel run", err)
	}
	resp := &models.CancelRunResponse{}
	resp.Body.Message = "Cancellation requested"
	return resp, nil
}

// ListRounds returns the rounds recorded so far
func (h *RunHandler) ListRounds(ctx context.Context, req *models.GetRunRequest) (*models.ListRoundsResponse, error) {
	rounds, err := h.svc.Rounds(ctx, req.ID)
	if err != nil {
		return nil, runError("Failed to list rounds", err)
	}
	resp := &models.ListRoundsResponse{}
	resp.Body.RunID = req.ID
	resp.Body.Rounds = rounds
	return resp, nil
}

// DownloadRound returns pre-signed URLs for a round's mirrored files
func (h *RunHandler) DownloadRound(ctx context.Context, req *models.DownloadRoundRequest) (*models.DownloadRoundResponse, error) {
	if h.s3Service == nil {
		return nil, huma.Error404NotFound("Object storage is not configured")
	}

	rounds, err := h.svc.Rounds(ctx, req.ID)
	if err != nil {
		return nil, runError("Failed to get run", err)
	}
	var found *models.Round
	for _, r := range rounds {
		if r.Index == req.Round {
			found = r
			break
		}
	}
	if found == nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("Round %d not recorded", req.Round))
	}
	if found.ExportError != nil {
		return nil, huma.Error409Conflict(fmt.Sprintf("Round %d was not exported", req.Round),
			errors.New(*found.ExportError))
	}

	dataKey, timeKey := export.ObjectKeys("runs/"+req.ID, req.Round, h.format)
	dataURL, err := h.s3Service.GenerateDownloadURL(ctx, dataKey)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to prepare download", err)
	}
	timeURL, err := h.s3Service.GenerateDownloadURL(ctx, timeKey)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to prepare download", err)
	}

	resp := &models.DownloadRoundResponse{}
	resp.Body.DataURL = dataURL
	resp.Body.TimeURL = timeURL
	resp.Body.ExpiresIn = int(h.s3Service.URLExpiry().Seconds())
	return resp, nil
}

// WaveformPreview synthesizes a pulse and returns a decimated copy
func (h *RunHandler) WaveformPreview(ctx context.Context, req *models.WaveformPreviewRequest) (*models.WaveformPreviewResponse, error) {
	p := h.pulse
	if req.SampleRate != 0 {
		p.SampleRate = req.SampleRate
	}
	if req.Duration != 0 {
		p.Duration = req.Duration
	}
	if req.CarrierFreq != 0 {
		p.CarrierFreq = req.CarrierFreq
	}
	if req.NumCycles != 0 {
		if int64(req.NumCycles) > math.MaxUint32 {
			return nil, huma.Error400BadRequest(fmt.Sprintf("cycles must not exceed %d", uint32(math.MaxUint32)))
		}
		p.NumCycles = uint32(req.NumCycles)
	}
	points := req.Points
	if points <= 0 {
		points = defaultPreviewPoints
	}

	// Checked on the float product so huge inputs cannot overflow the count.
	if total := p.SampleRate * p.Duration; total > maxPreviewSamples {
		return nil, huma.Error400BadRequest(fmt.Sprintf("Preview buffer of %.0f samples exceeds the limit of %d", total, maxPreviewSamples))
	}

	w, err := p.Synthesize()
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error(), err)
	}
	step := (w.Len() + points - 1) / points

	resp := &models.WaveformPreviewResponse{}
	resp.Body.SampleRate = w.SampleRate()
	resp.Body.TotalSamples = w.Len()
	resp.Body.OnSamples = w.OnSamples()
	resp.Body.Step = step
	resp.Body.Samples = w.Decimate(step)
	return resp, nil
}

// runError maps service errors to HTTP errors
func runError(msg string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return huma.Error404NotFound("Run not found", err)
	case errors.Is(err, runs.ErrBusy):
		return huma.Error409Conflict("Instrument is busy with another run", err)
	case errors.Is(err, runs.ErrNotRunning):
		return huma.Error409Conflict("Run is not active", err)
	case errors.Is(err, sequencer.ErrConfiguration), errors.Is(err, pulse.ErrInvalidParams):
		return huma.Error400BadRequest(err.Error(), err)
	default:
		return huma.Error500InternalServerError(msg, err)
	}
}

func runBody(run *models.Run) models.RunResponseBody {
	body := models.RunResponseBody{
		ID:              run.ID,
		Label:           run.Label,
		Status:          run.Status,
		NumAcq:          run.NumAcq,
		NbAvg:           run.NbAvg,
		RoundsCompleted: run.RoundsCompleted,
		RoundsExported:  run.RoundsExported,
		SaveDir:         run.SaveDir,
		CreatedAt:       run.CreatedAt,
		CompletedAt:     run.CompletedAt,
	}
	if run.NumAcq > 0 {
		body.Progress = min(100, run.RoundsCompleted*100/run.NumAcq)
	} else if run.Status == models.RunCompleted {
		body.Progress = 100
	}
	body.Message = statusMessage(run)
	return body
}

// statusMessage creates a human-readable status message
func statusMessage(run *models.Run) string {
	switch run.Status {
	case models.RunPending:
		return "Run queued, connecting to instrument..."
	case models.RunRunning:
		return fmt.Sprintf("Acquired %d of %d rounds", run.RoundsCompleted, run.NumAcq)
	case models.RunCompleted:
		if run.RoundsExported < run.RoundsCompleted {
			return fmt.Sprintf("Run complete, %d rounds failed to export", run.RoundsCompleted-run.RoundsExported)
		}
		return "Run complete!"
	case models.RunCancelled:
		return "Run cancelled."
	case models.RunFailed:
		if run.ErrorMsg != nil {
			return "Run failed: " + *run.ErrorMsg
		}
		return "Run failed."
	default:
		return "Unknown status"
	}
}
