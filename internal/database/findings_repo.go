package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/verifyai/verifyai/internal/metadata"
)

type FindingsRepo struct {
	db *DB
}

func NewFindingsRepo(db *DB) *FindingsRepo {
	return &FindingsRepo{db: db}
}

// Upsert stores metadata findings for an artifact. Extraction is
// deterministic for fixed bytes, so replacing on re-analysis is safe.
func (r *FindingsRepo) Upsert(ctx context.Context, digest string, findings *metadata.Findings) error {
	flagsJSON, err := json.Marshal(findings.Flags)
	if err != nil {
		return fmt.Errorf("failed to marshal flags: %w", err)
	}

	query := `
		INSERT INTO metadata_findings (digest, device_model, software, created_at_tag, modified_at_tag, has_gps, flags, extracted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (digest) DO UPDATE SET
			device_model = EXCLUDED.device_model,
			software = EXCLUDED.software,
			created_at_tag = EXCLUDED.created_at_tag,
			modified_at_tag = EXCLUDED.modified_at_tag,
			has_gps = EXCLUDED.has_gps,
			flags = EXCLUDED.flags,
			extracted_at = EXCLUDED.extracted_at`

	_, err = r.db.conn.ExecContext(ctx, query,
		digest,
		findings.DeviceModel,
		findings.Software,
		findings.CreatedAt,
		findings.ModifiedAt,
		findings.HasGPS,
		string(flagsJSON),
		findings.ExtractedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert findings: %w", err)
	}
	return nil
}

func (r *FindingsRepo) Get(ctx context.Context, digest string) (*metadata.Findings, error) {
	query := `
		SELECT device_model, software, created_at_tag, modified_at_tag, has_gps, flags, extracted_at
		FROM metadata_findings
		WHERE digest = $1`

	findings := &metadata.Findings{}
	var flagsJSON string
	err := r.db.conn.QueryRowContext(ctx, query, digest).Scan(
		&findings.DeviceModel,
		&findings.Software,
		&findings.CreatedAt,
		&findings.ModifiedAt,
		&findings.HasGPS,
		&flagsJSON,
		&findings.ExtractedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get findings: %w", err)
	}

	if err := json.Unmarshal([]byte(flagsJSON), &findings.Flags); err != nil {
		findings.Flags = []metadata.Flag{}
	}
	return findings, nil
}
