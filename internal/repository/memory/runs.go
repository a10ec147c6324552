// Package memory keeps runs in process memory, for the CLI and for servers
// started without DATABASE_URL.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/RMahshie/wavescope/internal/repository"
	"github.com/RMahshie/wavescope/pkg/models"
)

// RunRepository is a map-backed repository.RunRepository. Returned values
// are copies.
type RunRepository struct {
	mu     sync.RWMutex
	runs   map[string]*models.Run
	rounds map[string][]*models.Round
}

var _ repository.RunRepository = (*RunRepository)(nil)

// NewRunRepository returns an empty repository.
func NewRunRepository() *RunRepository {
	return &RunRepository{
		runs:   make(map[string]*models.Run),
		rounds: make(map[string][]*models.Round),
	}
}

func (r *RunRepository) Create(_ context.Context, run *models.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now
	r.runs[run.ID] = cloneRun(run)
	return nil
}

func (r *RunRepository) GetByID(_ context.Context, id string) (*models.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneRun(run), nil
}

func (r *RunRepository) List(_ context.Context, limit int) ([]*models.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	runs := make([]*models.Run, 0, len(r.runs))
	for _, run := range r.runs {
		runs = append(runs, cloneRun(run))
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].CreatedAt.After(runs[j].CreatedAt) })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (r *RunRepository) UpdateStatus(_ context.Context, id string, status models.RunStatus) error {
	return r.update(id, func(run *models.Run, now time.Time) {
		run.Status = status
		if status.Finished() {
			run.CompletedAt = &now
		}
	})
}

func (r *RunRepository) UpdateProgress(_ context.Context, id string, completed, exported int) error {
	return r.update(id, func(run *models.Run, _ time.Time) {
		run.RoundsCompleted = completed
		run.RoundsExported = exported
	})
}

func (r *RunRepository) UpdateError(_ context.Context, id string, status models.RunStatus, errorMsg string) error {
	return r.update(id, func(run *models.Run, now time.Time) {
		run.Status = status
		run.ErrorMsg = &errorMsg
		run.CompletedAt = &now
	})
}

func (r *RunRepository) update(id string, fn func(*models.Run, time.Time)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now().UTC()
	fn(run, now)
	run.UpdatedAt = now
	return nil
}

func (r *RunRepository) AddRound(_ context.Context, round *models.Round) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[round.RunID]; !ok {
		return repository.ErrNotFound
	}
	if round.ID == "" {
		round.ID = uuid.New().String()
	}
	if round.CreatedAt.IsZero() {
		round.CreatedAt = time.Now().UTC()
	}
	c := *round
	rounds := append(r.rounds[round.RunID], &c)
	sort.SliceStable(rounds, func(i, j int) bool { return rounds[i].Index < rounds[j].Index })
	r.rounds[round.RunID] = rounds
	return nil
}

func (r *RunRepository) GetRounds(_ context.Context, runID string) ([]*models.Round, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.runs[runID]; !ok {
		return nil, repository.ErrNotFound
	}
	out := make([]*models.Round, 0, len(r.rounds[runID]))
	for _, round := range r.rounds[runID] {
		c := *round
		out = append(out, &c)
	}
	return out, nil
}

func cloneRun(run *models.Run) *models.Run {
	c := *run
	if run.ErrorMsg != nil {
		msg := *run.ErrorMsg
		c.ErrorMsg = &msg
	}
	if run.CompletedAt != nil {
		at := *run.CompletedAt
		c.CompletedAt = &at
	}
	return &c
}
