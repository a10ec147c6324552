package models

import (
	"time"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Body struct {
		Status  string    `json:"status" example:"healthy" doc:"Service health status"`
		Version string    `json:"version" example:"1.0.0" doc:"API version"`
		Time    time.Time `json:"time" doc:"Current server time"`
	}
}

// StartRunRequest represents a request to start an acquisition run
type StartRunRequest struct {
	Body struct {
		Label  string `json:"label,omitempty" maxLength:"100" doc:"Free-form run label"`
		NumAcq *int   `json:"num_acq,omitempty" minimum:"0" maximum:"100000" doc:"Number of acquisition rounds, overrides the configured value"`
		NbAvg  *int   `json:"nb_avg,omitempty" minimum:"0" maximum:"10000" doc:"Bursts per round, overrides the configured value"`
	}
}

// RunResponseBody is the status view of a run
type RunResponseBody struct {
	ID              string     `json:"id" doc:"Run unique identifier"`
	Label           string     `json:"label,omitempty" doc:"Run label"`
	Status          RunStatus  `json:"status" enum:"pending,running,completed,failed,cancelled" doc:"Run status"`
	NumAcq          int        `json:"num_acq" doc:"Requested rounds"`
	NbAvg           int        `json:"nb_avg" doc:"Bursts per round"`
	RoundsCompleted int        `json:"rounds_completed" doc:"Rounds captured so far"`
	RoundsExported  int        `json:"rounds_exported" doc:"Rounds written without error"`
	Progress        int        `json:"progress" minimum:"0" maximum:"100" doc:"Run progress percentage"`
	Message         string     `json:"message,omitempty" doc:"Human-readable status message"`
	SaveDir         string     `json:"save_dir" doc:"Directory receiving capture files"`
	CreatedAt       time.Time  `json:"created_at" doc:"Run creation timestamp"`
	CompletedAt     *time.Time `json:"completed_at,omitempty" doc:"Run end timestamp"`
}

// RunResponse wraps RunResponseBody
type RunResponse struct {
	Body RunResponseBody
}

// GetRunRequest addresses a run by ID
type GetRunRequest struct {
	ID string `path:"id" doc:"Run ID"`
}

// ListRunsRequest pages through recent runs
type ListRunsRequest struct {
	Limit int `query:"limit" minimum:"0" maximum:"500" doc:"Maximum runs to return, default 50"`
}

// ListRunsResponse lists runs, newest first
type ListRunsResponse struct {
	Body struct {
		Runs []RunResponseBody `json:"runs" doc:"Runs, newest first"`
	}
}

// CancelRunRequest asks for a running run to be aborted
type CancelRunRequest struct {
	ID string `path:"id" doc:"Run ID"`
}

// CancelRunResponse represents the response from a cancel request
type CancelRunResponse struct {
	Body struct {
		Message string `json:"message" doc:"Confirmation message"`
	}
}

// ListRoundsResponse lists the rounds recorded for a run
type ListRoundsResponse struct {
	Body struct {
		RunID  string   `json:"run_id" doc:"Run ID"`
		Rounds []*Round `json:"rounds" doc:"Rounds in acquisition order"`
	}
}

// DownloadRoundRequest addresses one round's capture file
type DownloadRoundRequest struct {
	ID    string `path:"id" doc:"Run ID"`
	Round int    `path:"round" minimum:"0" doc:"Zero-based round index"`
}

// DownloadRoundResponse carries pre-signed URLs for a round's files
type DownloadRoundResponse struct {
	Body struct {
		DataURL   string `json:"data_url" doc:"Pre-signed URL of the capture file"`
		TimeURL   string `json:"time_url" doc:"Pre-signed URL of the timestamp file"`
		ExpiresIn int    `json:"expires_in" doc:"URL expiration time in seconds"`
	}
}

// WaveformPreviewRequest describes a pulse to synthesize for preview
type WaveformPreviewRequest struct {
	SampleRate  float64 `query:"sample_rate" minimum:"0" doc:"Samples per second, defaults to the configured value. The buffer may hold at most 4000000 samples"`
	Duration    float64 `query:"duration" minimum:"0" doc:"Buffer length in seconds, defaults to the configured run time"`
	CarrierFreq float64 `query:"carrier" minimum:"0" doc:"Carrier frequency in Hz, defaults to the configured value"`
	NumCycles   int     `query:"cycles" minimum:"0" maximum:"4294967295" doc:"Carrier cycles in the burst, defaults to the configured value"`
	Points      int     `query:"points" minimum:"0" maximum:"10000" doc:"Maximum preview points, default 1000"`
}

// WaveformPreviewResponse returns a decimated pulse
type WaveformPreviewResponse struct {
	Body struct {
		SampleRate   float64   `json:"sample_rate" doc:"Synthesis sample rate"`
		TotalSamples int       `json:"total_samples" doc:"Samples in the full buffer"`
		OnSamples    int       `json:"on_samples" doc:"Samples in the windowed burst"`
		Step         int       `json:"step" doc:"Decimation step of the preview"`
		Samples      []float64 `json:"samples" doc:"Decimated samples"`
	}
}
