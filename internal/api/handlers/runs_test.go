package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/RMahshie/wavescope/internal/export"
	"github.com/RMahshie/wavescope/internal/pulse"
	"github.com/RMahshie/wavescope/internal/repository"
	"github.com/RMahshie/wavescope/internal/runs"
	"github.com/RMahshie/wavescope/internal/sequencer"
	"github.com/RMahshie/wavescope/pkg/models"
)

// MockRunService implements runs.Service for testing
type MockRunService struct {
	mock.Mock
}

func (m *MockRunService) Start(ctx context.Context, req runs.StartRequest) (*models.Run, error) {
	args := m.Called(ctx, req)
	run, _ := args.Get(0).(*models.Run)
	return run, args.Error(1)
}

func (m *MockRunService) Execute(ctx context.Context, req runs.StartRequest) (*models.Run, *sequencer.Summary, error) {
	args := m.Called(ctx, req)
	run, _ := args.Get(0).(*models.Run)
	summary, _ := args.Get(1).(*sequencer.Summary)
	return run, summary, args.Error(2)
}

func (m *MockRunService) Cancel(id string) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockRunService) Wait(id string) {
	m.Called(id)
}

func (m *MockRunService) Get(ctx context.Context, id string) (*models.Run, error) {
	args := m.Called(ctx, id)
	run, _ := args.Get(0).(*models.Run)
	return run, args.Error(1)
}

func (m *MockRunService) List(ctx context.Context, limit int) ([]*models.Run, error) {
	args := m.Called(ctx, limit)
	list, _ := args.Get(0).([]*models.Run)
	return list, args.Error(1)
}

func (m *MockRunService) Rounds(ctx context.Context, id string) ([]*models.Round, error) {
	args := m.Called(ctx, id)
	rounds, _ := args.Get(0).([]*models.Round)
	return rounds, args.Error(1)
}

func (m *MockRunService) Shutdown(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockS3Service implements storage.Service for testing
type MockS3Service struct {
	mock.Mock
}

func (m *MockS3Service) Upload(ctx context.Context, key string, body []byte, contentType string) error {
	args := m.Called(ctx, key, body, contentType)
	return args.Error(0)
}

func (m *MockS3Service) GenerateDownloadURL(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockS3Service) URLExpiry() time.Duration {
	args := m.Called()
	return args.Get(0).(time.Duration)
}

var defaultPulse = pulse.Params{SampleRate: 100e6, Duration: 5e-4, CarrierFreq: 500e3, NumCycles: 10}

func assertStatus(t *testing.T, err error, code int) {
	t.Helper()
	var se huma.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, code, se.GetStatus())
}

func TestStartRun(t *testing.T) {
	numAcq := 3
	tests := []struct {
		name      string
		mockSetup func(*MockRunService)
		wantCode  int
	}{
		{
			name: "started",
			mockSetup: func(svc *MockRunService) {
				svc.On("Start", mock.Anything, runs.StartRequest{Label: "centering", NumAcq: &numAcq}).
					Return(&models.Run{ID: "run-1", Status: models.RunPending, NumAcq: 3}, nil)
			},
		},
		{
			name: "instrument busy",
			mockSetup: func(svc *MockRunService) {
				svc.On("Start", mock.Anything, mock.Anything).Return(nil, runs.ErrBusy)
			},
			wantCode: http.StatusConflict,
		},
		{
			name: "invalid parameters",
			mockSetup: func(svc *MockRunService) {
				svc.On("Start", mock.Anything, mock.Anything).
					Return(nil, &sequencer.ConfigError{Field: "num_acq", Err: errors.New("must not be negative")})
			},
			wantCode: http.StatusBadRequest,
		},
		{
			name: "storage failure",
			mockSetup: func(svc *MockRunService) {
				svc.On("Start", mock.Anything, mock.Anything).Return(nil, assert.AnError)
			},
			wantCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockRunService{}
			tt.mockSetup(svc)
			handler := NewRunHandler(svc, nil, defaultPulse, export.FormatCSV)

			req := &models.StartRunRequest{}
			req.Body.Label = "centering"
			req.Body.NumAcq = &numAcq
			resp, err := handler.StartRun(context.Background(), req)

			if tt.wantCode != 0 {
				assertStatus(t, err, tt.wantCode)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "run-1", resp.Body.ID)
				assert.Equal(t, models.RunPending, resp.Body.Status)
				assert.Equal(t, 0, resp.Body.Progress)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestGetRun(t *testing.T) {
	svc := &MockRunService{}
	msg := "instrument: round 1: read trigger input: usb reset"
	svc.On("Get", mock.Anything, "run-1").Return(&models.Run{
		ID: "run-1", Status: models.RunFailed, NumAcq: 4, RoundsCompleted: 1, RoundsExported: 1, ErrorMsg: &msg,
	}, nil)
	svc.On("Get", mock.Anything, "missing").Return(nil, repository.ErrNotFound)
	handler := NewRunHandler(svc, nil, defaultPulse, export.FormatCSV)

	resp, err := handler.GetRun(context.Background(), &models.GetRunRequest{ID: "run-1"})
	require.NoError(t, err)
	assert.Equal(t, 25, resp.Body.Progress)
	assert.Contains(t, resp.Body.Message, "usb reset")

	_, err = handler.GetRun(context.Background(), &models.GetRunRequest{ID: "missing"})
	assertStatus(t, err, http.StatusNotFound)
}

func TestListRuns(t *testing.T) {
	svc := &MockRunService{}
	svc.On("List", mock.Anything, 5).Return([]*models.Run{
		{ID: "b", Status: models.RunCompleted, NumAcq: 2, RoundsCompleted: 2, RoundsExported: 1},
		{ID: "a", Status: models.RunCancelled},
	}, nil)
	handler := NewRunHandler(svc, nil, defaultPulse, export.FormatCSV)

	resp, err := handler.ListRuns(context.Background(), &models.ListRunsRequest{Limit: 5})
	require.NoError(t, err)
	require.Len(t, resp.Body.Runs, 2)
	assert.Equal(t, 100, resp.Body.Runs[0].Progress)
	assert.Contains(t, resp.Body.Runs[0].Message, "1 rounds failed to export")
	assert.Equal(t, "Run cancelled.", resp.Body.Runs[1].Message)
}

func TestCancelRun(t *testing.T) {
	svc := &MockRunService{}
	svc.On("Cancel", "run-1").Return(nil)
	svc.On("Cancel", "done").Return(runs.ErrNotRunning)
	svc.On("Cancel", "missing").Return(repository.ErrNotFound)
	handler := NewRunHandler(svc, nil, defaultPulse, export.FormatCSV)

	resp, err := handler.CancelRun(context.Background(), &models.CancelRunRequest{ID: "run-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Body.Message)

	_, err = handler.CancelRun(context.Background(), &models.CancelRunRequest{ID: "done"})
	assertStatus(t, err, http.StatusConflict)
	_, err = handler.CancelRun(context.Background(), &models.CancelRunRequest{ID: "missing"})
	assertStatus(t, err, http.StatusNotFound)
}

func TestDownloadRound(t *testing.T) {
	exportErr := "disk full"
	rounds := []*models.Round{
		{RunID: "run-1", Index: 0, CapturedAt: time.Now()},
		{RunID: "run-1", Index: 1, CapturedAt: time.Now(), ExportError: &exportErr},
	}

	svc := &MockRunService{}
	svc.On("Rounds", mock.Anything, "run-1").Return(rounds, nil)
	s3 := &MockS3Service{}
	s3.On("GenerateDownloadURL", mock.Anything, "runs/run-1/data0.npy").Return("https://example.com/data0", nil)
	s3.On("GenerateDownloadURL", mock.Anything, "runs/run-1/time0.csv").Return("https://example.com/time0", nil)
	s3.On("URLExpiry").Return(time.Hour)
	handler := NewRunHandler(svc, s3, defaultPulse, export.FormatNPY)

	resp, err := handler.DownloadRound(context.Background(), &models.DownloadRoundRequest{ID: "run-1", Round: 0})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/data0", resp.Body.DataURL)
	assert.Equal(t, "https://example.com/time0", resp.Body.TimeURL)
	assert.Equal(t, 3600, resp.Body.ExpiresIn)

	_, err = handler.DownloadRound(context.Background(), &models.DownloadRoundRequest{ID: "run-1", Round: 1})
	assertStatus(t, err, http.StatusConflict)
	_, err = handler.DownloadRound(context.Background(), &models.DownloadRoundRequest{ID: "run-1", Round: 7})
	assertStatus(t, err, http.StatusNotFound)
	s3.AssertExpectations(t)

	noStorage := NewRunHandler(svc, nil, defaultPulse, export.FormatCSV)
	_, err = noStorage.DownloadRound(context.Background(), &models.DownloadRoundRequest{ID: "run-1"})
	assertStatus(t, err, http.StatusNotFound)
}

func TestWaveformPreview(t *testing.T) {
	handler := NewRunHandler(&MockRunService{}, nil, defaultPulse, export.FormatCSV)

	resp, err := handler.WaveformPreview(context.Background(), &models.WaveformPreviewRequest{Points: 500})
	require.NoError(t, err)
	assert.Equal(t, 50000, resp.Body.TotalSamples)
	assert.Equal(t, 2000, resp.Body.OnSamples)
	assert.Equal(t, 100, resp.Body.Step)
	assert.Len(t, resp.Body.Samples, 500)
	assert.Equal(t, 0.0, resp.Body.Samples[0])
	assert.Equal(t, 0.0, resp.Body.Samples[len(resp.Body.Samples)-1])

	resp, err = handler.WaveformPreview(context.Background(), &models.WaveformPreviewRequest{NumCycles: 20})
	require.NoError(t, err)
	assert.Equal(t, 4000, resp.Body.OnSamples)
	assert.Len(t, resp.Body.Samples, 1000)

	_, err = handler.WaveformPreview(context.Background(), &models.WaveformPreviewRequest{NumCycles: 1000})
	assertStatus(t, err, http.StatusBadRequest)
}

func TestWaveformPreview_RejectsOversizedBuffer(t *testing.T) {
	handler := NewRunHandler(&MockRunService{}, nil, defaultPulse, export.FormatCSV)

	tests := []struct {
		name string
		req  models.WaveformPreviewRequest
	}{
		{name: "sample rate", req: models.WaveformPreviewRequest{SampleRate: 2e11}},
		{name: "duration", req: models.WaveformPreviewRequest{Duration: 3600}},
		{name: "both", req: models.WaveformPreviewRequest{SampleRate: 1e300, Duration: 1e300}},
		{name: "cycles overflow", req: models.WaveformPreviewRequest{NumCycles: 1 << 33}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := handler.WaveformPreview(context.Background(), &tt.req)
			assertStatus(t, err, http.StatusBadRequest)
			assert.Nil(t, resp)
		})
	}

	// A large buffer under the limit is still served.
	resp, err := handler.WaveformPreview(context.Background(), &models.WaveformPreviewRequest{SampleRate: 4e9})
	require.NoError(t, err)
	assert.Equal(t, 2_000_000, resp.Body.TotalSamples)
	assert.Len(t, resp.Body.Samples, 1000)
}
