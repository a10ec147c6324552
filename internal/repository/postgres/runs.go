package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/RMahshie/wavescope/internal/repository"
	"github.com/RMahshie/wavescope/pkg/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies the schema. Statements are idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	files, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(files)
	for _, name := range files {
		stmt, err := migrations.ReadFile(name)
		if err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, string(stmt)); err != nil {
			return fmt.Errorf("failed to apply %s: %w", name, err)
		}
	}
	return nil
}

// PostgresRunRepository implements RunRepository for PostgreSQL
type PostgresRunRepository struct {
	db *sql.DB
}

// NewPostgresRunRepository creates a new PostgreSQL run repository
func NewPostgresRunRepository(db *sql.DB) repository.RunRepository {
	return &PostgresRunRepository{db: db}
}

const runColumns = `id, label, status, num_acq, nb_avg, save_dir, rounds_completed, rounds_exported,
	error_message, created_at, updated_at, completed_at`

// Create inserts a new run record, assigning its ID and timestamps when unset
func (r *PostgresRunRepository) Create(ctx context.Context, run *models.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now

	query := `
		INSERT INTO runs (id, label, status, num_acq, nb_avg, save_dir, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.Label,
		run.Status,
		run.NumAcq,
		run.NbAvg,
		run.SaveDir,
		run.CreatedAt,
		run.UpdatedAt)

	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*models.Run, error) {
	var run models.Run
	var errorMsg sql.NullString
	var completedAt sql.NullTime

	err := s.Scan(
		&run.ID,
		&run.Label,
		&run.Status,
		&run.NumAcq,
		&run.NbAvg,
		&run.SaveDir,
		&run.RoundsCompleted,
		&run.RoundsExported,
		&errorMsg,
		&run.CreatedAt,
		&run.UpdatedAt,
		&completedAt)
	if err != nil {
		return nil, err
	}

	if errorMsg.Valid {
		run.ErrorMsg = &errorMsg.String
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	return &run, nil
}

// GetByID retrieves a run by ID
func (r *PostgresRunRepository) GetByID(ctx context.Context, id string) (*models.Run, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, repository.ErrNotFound
	}

	query := `SELECT ` + runColumns + ` FROM runs WHERE id = $1`
	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return run, err
}

// List returns the most recent runs first
func (r *PostgresRunRepository) List(ctx context.Context, limit int) ([]*models.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// UpdateStatus sets the status, stamping completed_at for finished runs
func (r *PostgresRunRepository) UpdateStatus(ctx context.Context, id string, status models.RunStatus) error {
	query := `
		UPDATE runs
		SET status = $1, updated_at = NOW(),
		    completed_at = CASE WHEN $2 THEN NOW() ELSE completed_at END
		WHERE id = $3`

	return r.exec(ctx, query, status, status.Finished(), id)
}

// UpdateProgress records the round counters
func (r *PostgresRunRepository) UpdateProgress(ctx context.Context, id string, completed, exported int) error {
	query := `
		UPDATE runs
		SET rounds_completed = $1, rounds_exported = $2, updated_at = NOW()
		WHERE id = $3`

	return r.exec(ctx, query, completed, exported, id)
}

// UpdateError ends a run with an error message
func (r *PostgresRunRepository) UpdateError(ctx context.Context, id string, status models.RunStatus, errorMsg string) error {
	query := `
		UPDATE runs
		SET status = $1, error_message = $2, updated_at = NOW(), completed_at = NOW()
		WHERE id = $3`

	return r.exec(ctx, query, status, errorMsg, id)
}

func (r *PostgresRunRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// AddRound stores a round row
func (r *PostgresRunRepository) AddRound(ctx context.Context, round *models.Round) error {
	if round.ID == "" {
		round.ID = uuid.New().String()
	}
	if round.CreatedAt.IsZero() {
		round.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO rounds (id, run_id, round_index, captured_at, sample_count, mean, rms, peak_to_peak, export_error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.ExecContext(ctx, query,
		round.ID,
		round.RunID,
		round.Index,
		round.CapturedAt,
		round.SampleCount,
		round.Mean,
		round.RMS,
		round.PeakToPeak,
		round.ExportError,
		round.CreatedAt)

	return err
}

// GetRounds returns a run's rounds in acquisition order
func (r *PostgresRunRepository) GetRounds(ctx context.Context, runID string) ([]*models.Round, error) {
	if _, err := uuid.Parse(runID); err != nil {
		return nil, repository.ErrNotFound
	}

	query := `
		SELECT id, run_id, round_index, captured_at, sample_count, mean, rms, peak_to_peak, export_error, created_at
		FROM rounds
		WHERE run_id = $1
		ORDER BY round_index`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rounds := []*models.Round{}
	for rows.Next() {
		var round models.Round
		var exportErr sql.NullString

		err := rows.Scan(
			&round.ID,
			&round.RunID,
			&round.Index,
			&round.CapturedAt,
			&round.SampleCount,
			&round.Mean,
			&round.RMS,
			&round.PeakToPeak,
			&exportErr,
			&round.CreatedAt)
		if err != nil {
			return nil, err
		}

		if exportErr.Valid {
			round.ExportError = &exportErr.String
		}
		rounds = append(rounds, &round)
	}
	return rounds, rows.Err()
}
