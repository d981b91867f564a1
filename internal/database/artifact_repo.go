package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/verifyai/verifyai/internal/media"
	"github.com/verifyai/verifyai/internal/models"
)

// ErrNotFound is returned by repository lookups that match no row.
var ErrNotFound = errors.New("record not found")

type ArtifactRepo struct {
	db *DB
}

func NewArtifactRepo(db *DB) *ArtifactRepo {
	return &ArtifactRepo{db: db}
}

// Insert persists an artifact record. Re-inserting the same digest is a
// no-op: artifacts are immutable and deduplicated by content address.
func (r *ArtifactRepo) Insert(ctx context.Context, artifact *models.Artifact) error {
	query := `
		INSERT INTO artifacts (digest, media_kind, declared_mime, detected_mime, size_bytes, ingested_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (digest) DO NOTHING`

	_, err := r.db.conn.ExecContext(ctx, query,
		artifact.Digest,
		string(artifact.Kind),
		artifact.DeclaredMIME,
		artifact.DetectedMIME,
		artifact.SizeBytes,
		artifact.IngestedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert artifact: %w", err)
	}
	return nil
}

func (r *ArtifactRepo) Get(ctx context.Context, digest string) (*models.Artifact, error) {
	query := `
		SELECT digest, media_kind, declared_mime, detected_mime, size_bytes, ingested_at
		FROM artifacts
		WHERE digest = $1`

	artifact := &models.Artifact{}
	var kind string
	err := r.db.conn.QueryRowContext(ctx, query, digest).Scan(
		&artifact.Digest,
		&kind,
		&artifact.DeclaredMIME,
		&artifact.DetectedMIME,
		&artifact.SizeBytes,
		&artifact.IngestedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}

	artifact.Kind = media.Kind(kind)
	return artifact, nil
}

func (r *ArtifactRepo) Exists(ctx context.Context, digest string) (bool, error) {
	var one int
	err := r.db.conn.QueryRowContext(ctx,
		`SELECT 1 FROM artifacts WHERE digest = $1`, digest).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check artifact: %w", err)
	}
	return true, nil
}
