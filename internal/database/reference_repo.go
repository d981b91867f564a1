package database

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/verifyai/verifyai/internal/detector"
)

// ReferenceRepo holds the perceptual-hash corpus of known-manipulated and
// known-original artifacts. It implements detector.ReferenceSource.
type ReferenceRepo struct {
	db *DB
}

func NewReferenceRepo(db *DB) *ReferenceRepo {
	return &ReferenceRepo{db: db}
}

func (r *ReferenceRepo) Add(ctx context.Context, ref detector.Reference) error {
	query := `
		INSERT INTO reference_hashes (digest, phash, label, added_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (digest) DO UPDATE SET
			phash = EXCLUDED.phash,
			label = EXCLUDED.label`

	_, err := r.db.conn.ExecContext(ctx, query,
		ref.Digest,
		fmt.Sprintf("%016x", ref.Hash),
		ref.Label,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to add reference hash: %w", err)
	}
	return nil
}

func (r *ReferenceRepo) KnownManipulated(ctx context.Context) ([]detector.Reference, error) {
	return r.byLabel(ctx, "manipulated")
}

func (r *ReferenceRepo) byLabel(ctx context.Context, label string) ([]detector.Reference, error) {
	query := `
		SELECT digest, phash, label
		FROM reference_hashes
		WHERE label = $1
		ORDER BY digest`

	rows, err := r.db.conn.QueryContext(ctx, query, label)
	if err != nil {
		return nil, fmt.Errorf("failed to query reference hashes: %w", err)
	}
	defer rows.Close()

	var refs []detector.Reference
	for rows.Next() {
		var ref detector.Reference
		var hashHex string
		if err := rows.Scan(&ref.Digest, &hashHex, &ref.Label); err != nil {
			return nil, fmt.Errorf("failed to scan reference hash: %w", err)
		}
		hash, err := strconv.ParseUint(hashHex, 16, 64)
		if err != nil {
			continue
		}
		ref.Hash = hash
		refs = append(refs, ref)
	}

	return refs, rows.Err()
}

// SeedFromFile loads reference hashes from a text file with one
// "hash_hex digest label" entry per line. Lines starting with '#' are
// comments. Returns the number of entries loaded.
func (r *ReferenceRepo) SeedFromFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()

	loaded := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 3 {
			return loaded, fmt.Errorf("malformed seed line: %q", line)
		}

		hash, err := strconv.ParseUint(fields[0], 16, 64)
		if err != nil {
			return loaded, fmt.Errorf("malformed hash in seed line %q: %w", line, err)
		}

		ref := detector.Reference{Hash: hash, Digest: fields[1], Label: fields[2]}
		if err := r.Add(ctx, ref); err != nil {
			return loaded, err
		}
		loaded++
	}

	return loaded, scanner.Err()
}
