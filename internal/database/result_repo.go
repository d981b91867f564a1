package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/verifyai/verifyai/internal/detector"
	"github.com/verifyai/verifyai/internal/models"
)

type ResultRepo struct {
	db *DB
}

func NewResultRepo(db *DB) *ResultRepo {
	return &ResultRepo{db: db}
}

// Insert persists one detector result. Results are immutable once written;
// the (run_id, detector) uniqueness constraint rejects duplicates.
func (r *ResultRepo) Insert(ctx context.Context, runID, digest string, result detector.Result) (*models.StoredResult, error) {
	stored := &models.StoredResult{
		ID:        uuid.New().String(),
		RunID:     runID,
		Digest:    digest,
		Detector:  result.Detector,
		Status:    string(result.Status),
		Score:     result.Score,
		Evidence:  result.Evidence,
		ElapsedMS: result.Elapsed.Milliseconds(),
		CreatedAt: time.Now().UTC(),
	}

	query := `
		INSERT INTO detector_results (id, run_id, digest, detector, status, score, evidence, elapsed_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.conn.ExecContext(ctx, query,
		stored.ID,
		stored.RunID,
		stored.Digest,
		stored.Detector,
		stored.Status,
		stored.Score,
		string(stored.Evidence),
		stored.ElapsedMS,
		stored.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert detector result: %w", err)
	}
	return stored, nil
}

func (r *ResultRepo) ListByRun(ctx context.Context, runID string) ([]*models.StoredResult, error) {
	query := `
		SELECT id, run_id, digest, detector, status, score, evidence, elapsed_ms, created_at
		FROM detector_results
		WHERE run_id = $1
		ORDER BY detector`

	return r.list(ctx, query, runID)
}

func (r *ResultRepo) ListByDigest(ctx context.Context, digest string) ([]*models.StoredResult, error) {
	query := `
		SELECT id, run_id, digest, detector, status, score, evidence, elapsed_ms, created_at
		FROM detector_results
		WHERE digest = $1
		ORDER BY created_at DESC, detector`

	return r.list(ctx, query, digest)
}

func (r *ResultRepo) list(ctx context.Context, query string, arg any) ([]*models.StoredResult, error) {
	rows, err := r.db.conn.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query detector results: %w", err)
	}
	defer rows.Close()

	var results []*models.StoredResult
	for rows.Next() {
		stored := &models.StoredResult{}
		var score sql.NullFloat64
		var evidence string
		if err := rows.Scan(
			&stored.ID,
			&stored.RunID,
			&stored.Digest,
			&stored.Detector,
			&stored.Status,
			&score,
			&evidence,
			&stored.ElapsedMS,
			&stored.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan detector result: %w", err)
		}
		if score.Valid {
			stored.Score = &score.Float64
		}
		if evidence != "" {
			stored.Evidence = json.RawMessage(evidence)
		}
		results = append(results, stored)
	}

	return results, rows.Err()
}
