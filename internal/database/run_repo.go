package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/verifyai/verifyai/internal/models"
)

type RunRepo struct {
	db *DB
}

func NewRunRepo(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

func (r *RunRepo) Create(ctx context.Context, run *models.Run) error {
	query := `
		INSERT INTO analysis_runs (id, digest, state, failure_reason, policy_version, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.conn.ExecContext(ctx, query,
		run.ID,
		run.Digest,
		string(run.State),
		run.FailureReason,
		run.PolicyVersion,
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// Transition advances the run state. Transitions out of a terminal state
// are rejected; a fresh run must be started instead.
func (r *RunRepo) Transition(ctx context.Context, runID string, state models.RunState, failureReason string) error {
	current, err := r.Get(ctx, runID)
	if err != nil {
		return err
	}
	if current.State.Terminal() {
		return fmt.Errorf("run %s already terminal in state %s", runID, current.State)
	}

	var finishedAt *time.Time
	if state.Terminal() {
		now := time.Now().UTC()
		finishedAt = &now
	}

	query := `
		UPDATE analysis_runs
		SET state = $1, failure_reason = $2, finished_at = $3
		WHERE id = $4`

	_, err = r.db.conn.ExecContext(ctx, query, string(state), failureReason, finishedAt, runID)
	if err != nil {
		return fmt.Errorf("failed to transition run: %w", err)
	}
	return nil
}

func (r *RunRepo) Get(ctx context.Context, runID string) (*models.Run, error) {
	query := `
		SELECT id, digest, state, failure_reason, policy_version, started_at, finished_at
		FROM analysis_runs
		WHERE id = $1`

	return r.scanOne(r.db.conn.QueryRowContext(ctx, query, runID))
}

// Latest returns the most recent run for a digest, terminal or not.
func (r *RunRepo) Latest(ctx context.Context, digest string) (*models.Run, error) {
	query := `
		SELECT id, digest, state, failure_reason, policy_version, started_at, finished_at
		FROM analysis_runs
		WHERE digest = $1
		ORDER BY started_at DESC
		LIMIT 1`

	return r.scanOne(r.db.conn.QueryRowContext(ctx, query, digest))
}

// HasActive reports whether any non-terminal run exists for the digest.
func (r *RunRepo) HasActive(ctx context.Context, digest string) (bool, error) {
	query := `
		SELECT COUNT(*) FROM analysis_runs
		WHERE digest = $1 AND state NOT IN ('recorded', 'failed')`

	var count int
	if err := r.db.conn.QueryRowContext(ctx, query, digest).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to count active runs: %w", err)
	}
	return count > 0, nil
}

func (r *RunRepo) scanOne(row *sql.Row) (*models.Run, error) {
	run := &models.Run{}
	var state string
	var finishedAt sql.NullTime
	err := row.Scan(
		&run.ID,
		&run.Digest,
		&state,
		&run.FailureReason,
		&run.PolicyVersion,
		&run.StartedAt,
		&finishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.State = models.RunState(state)
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	return run, nil
}
