package api

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/RMahshie/wavescope/internal/api/handlers"
)

// RegisterRoutes sets up all API routes
func RegisterRoutes(api huma.API, runHandler *handlers.RunHandler) {
	// Register run routes
	huma.Register(api, huma.Operation{
		OperationID: "listRuns",
		Method:      http.MethodGet,
		Path:        "/api/runs",
		Summary:     "List runs",
		Description: "Returns recent acquisition runs, newest first",
		Tags:        []string{"Runs"},
	}, runHandler.ListRuns)

	huma.Register(api, huma.Operation{
		OperationID:   "startRun",
		Method:        http.MethodPost,
		Path:          "/api/runs",
		Summary:       "Start a run",
		Description:   "Arms the generator and starts acquiring rounds in the background. Only one run may hold the instrument at a time.",
		Tags:          []string{"Runs"},
		DefaultStatus: http.StatusAccepted,
	}, runHandler.StartRun)

	huma.Register(api, huma.Operation{
		OperationID: "getRun",
		Method:      http.MethodGet,
		Path:        "/api/runs/{id}",
		Summary:     "Get run status",
		Description: "Returns the current status and progress of a run",
		Tags:        []string{"Runs"},
	}, runHandler.GetRun)

	huma.Register(api, huma.Operation{
		OperationID: "listRounds",
		Method:      http.MethodGet,
		Path:        "/api/runs/{id}/rounds",
		Summary:     "List rounds",
		Description: "Returns the rounds captured so far with their summary statistics",
		Tags:        []string{"Runs"},
	}, runHandler.ListRounds)

	huma.Register(api, huma.Operation{
		OperationID: "cancelRun",
		Method:      http.MethodPost,
		Path:        "/api/runs/{id}/cancel",
		Summary:     "Cancel a run",
		Description: "Stops the instrument and ends an active run",
		Tags:        []string{"Runs"},
	}, runHandler.CancelRun)

	huma.Register(api, huma.Operation{
		OperationID: "downloadRound",
		Method:      http.MethodGet,
		Path:        "/api/runs/{id}/rounds/{round}/download",
		Summary:     "Download a round",
		Description: "Returns pre-signed URLs for a round's capture and timestamp files",
		Tags:        []string{"Runs"},
	}, runHandler.DownloadRound)

	// Register waveform routes
	huma.Register(api, huma.Operation{
		OperationID: "previewWaveform",
		Method:      http.MethodGet,
		Path:        "/api/waveform",
		Summary:     "Preview the pulse",
		Description: "Synthesizes the configured pulse, with optional overrides, and returns a decimated copy",
		Tags:        []string{"Waveform"},
	}, runHandler.WaveformPreview)
}
