package repository

import (
	"context"
	"errors"

	"github.com/RMahshie/wavescope/pkg/models"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// RunRepository defines the interface for run bookkeeping
type RunRepository interface {
	Create(ctx context.Context, run *models.Run) error
	GetByID(ctx context.Context, id string) (*models.Run, error)
	List(ctx context.Context, limit int) ([]*models.Run, error)
	UpdateStatus(ctx context.Context, id string, status models.RunStatus) error
	UpdateProgress(ctx context.Context, id string, completed, exported int) error
	UpdateError(ctx context.Context, id string, status models.RunStatus, errorMsg string) error
	AddRound(ctx context.Context, round *models.Round) error
	GetRounds(ctx context.Context, runID string) ([]*models.Round, error)
}
