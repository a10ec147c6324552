package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RMahshie/wavescope/internal/repository"
	"github.com/RMahshie/wavescope/pkg/models"
)

func TestRunRepository_Lifecycle(t *testing.T) {
	repo := NewRunRepository()
	ctx := context.Background()

	run := &models.Run{Status: models.RunPending, NumAcq: 3, NbAvg: 2}
	require.NoError(t, repo.Create(ctx, run))
	require.NotEmpty(t, run.ID)
	assert.False(t, run.CreatedAt.IsZero())

	require.NoError(t, repo.UpdateStatus(ctx, run.ID, models.RunRunning))
	require.NoError(t, repo.UpdateProgress(ctx, run.ID, 2, 1))

	got, err := repo.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunRunning, got.Status)
	assert.Equal(t, 2, got.RoundsCompleted)
	assert.Equal(t, 1, got.RoundsExported)
	assert.Nil(t, got.CompletedAt)

	got.Status = models.RunFailed
	again, err := repo.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunRunning, again.Status, "returned runs are copies")

	require.NoError(t, repo.UpdateError(ctx, run.ID, models.RunFailed, "usb reset"))
	got, err = repo.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, got.Status)
	require.NotNil(t, got.ErrorMsg)
	assert.Equal(t, "usb reset", *got.ErrorMsg)
	assert.NotNil(t, got.CompletedAt)
}

func TestRunRepository_RoundsOrdered(t *testing.T) {
	repo := NewRunRepository()
	ctx := context.Background()
	run := &models.Run{Status: models.RunRunning}
	require.NoError(t, repo.Create(ctx, run))

	for _, i := range []int{2, 0, 1} {
		require.NoError(t, repo.AddRound(ctx, &models.Round{RunID: run.ID, Index: i, CapturedAt: time.Now()}))
	}
	rounds, err := repo.GetRounds(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, rounds, 3)
	for i, r := range rounds {
		assert.Equal(t, i, r.Index)
		assert.NotEmpty(t, r.ID)
	}

	assert.ErrorIs(t, repo.AddRound(ctx, &models.Round{RunID: "missing"}), repository.ErrNotFound)
}

func TestRunRepository_NotFound(t *testing.T) {
	repo := NewRunRepository()
	ctx := context.Background()

	_, err := repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = repo.GetRounds(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, repo.UpdateStatus(ctx, "missing", models.RunCompleted), repository.ErrNotFound)
	assert.ErrorIs(t, repo.UpdateProgress(ctx, "missing", 1, 1), repository.ErrNotFound)
}

func TestRunRepository_ListNewestFirst(t *testing.T) {
	repo := NewRunRepository()
	ctx := context.Background()
	base := time.Date(2024, 10, 15, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, &models.Run{Label: string(rune('a' + i)), CreatedAt: base.Add(time.Duration(i) * time.Minute)}))
	}

	runs, err := repo.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].Label)
	assert.Equal(t, "b", runs[1].Label)
}
