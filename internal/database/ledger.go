package database

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/verifyai/verifyai/internal/fusion"
	"github.com/verifyai/verifyai/internal/models"
)

// ErrChainBroken means a ledger entry does not match the recomputed HMAC
// chain: the history has been tampered with or the secret changed.
var ErrChainBroken = errors.New("verdict ledger chain broken")

const ledgerAppendRetries = 3

// Ledger is the append-only verdict store. Append is the only mutation;
// there is no update or delete. Each entry carries an HMAC-SHA256 chain tag
// over (previous tag || canonical verdict bytes) per digest, so the history
// of any artifact is tamper-evident.
type Ledger struct {
	db     *DB
	secret []byte
}

func NewLedger(db *DB, secret []byte) *Ledger {
	return &Ledger{db: db, secret: secret}
}

// Append writes one verdict entry atomically, assigning the next sequence
// number for the digest and chaining the tag onto the previous entry.
// Concurrent appends for the same digest retry on sequence collision.
func (l *Ledger) Append(ctx context.Context, verdict *models.Verdict) (string, error) {
	var lastErr error
	for attempt := 0; attempt < ledgerAppendRetries; attempt++ {
		err := l.tryAppend(ctx, verdict)
		if err == nil {
			return verdict.ID, nil
		}
		if !isUniqueViolation(err) {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("failed to append verdict after %d attempts: %w", ledgerAppendRetries, lastErr)
}

func (l *Ledger) tryAppend(ctx context.Context, verdict *models.Verdict) error {
	tx, err := l.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin ledger transaction: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	var prevTag string
	err = tx.QueryRowContext(ctx, `
		SELECT seq, chain_tag FROM verdicts
		WHERE digest = $1
		ORDER BY seq DESC
		LIMIT 1`, verdict.Digest).Scan(&seq, &prevTag)
	if errors.Is(err, sql.ErrNoRows) {
		seq = 0
		prevTag = ""
	} else if err != nil {
		return fmt.Errorf("failed to read ledger tail: %w", err)
	}

	verdict.ChainTag = l.chainTag(prevTag, verdict)

	resultIDs, err := json.Marshal(verdict.ResultIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal result ids: %w", err)
	}
	degraded, err := json.Marshal(verdict.Degraded)
	if err != nil {
		return fmt.Errorf("failed to marshal degraded list: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO verdicts (id, run_id, digest, seq, score, label, policy_version, result_ids, degraded, chain_tag, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		verdict.ID,
		verdict.RunID,
		verdict.Digest,
		seq+1,
		verdict.Score,
		string(verdict.Label),
		verdict.PolicyVersion,
		string(resultIDs),
		string(degraded),
		verdict.ChainTag,
		verdict.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert verdict: %w", err)
	}

	return tx.Commit()
}

// History returns all verdicts for a digest, newest first.
func (l *Ledger) History(ctx context.Context, digest string) ([]*models.Verdict, error) {
	query := `
		SELECT id, run_id, digest, score, label, policy_version, result_ids, degraded, chain_tag, created_at
		FROM verdicts
		WHERE digest = $1
		ORDER BY seq DESC`

	rows, err := l.db.conn.QueryContext(ctx, query, digest)
	if err != nil {
		return nil, fmt.Errorf("failed to query verdict history: %w", err)
	}
	defer rows.Close()

	var verdicts []*models.Verdict
	for rows.Next() {
		verdict, err := scanVerdict(rows)
		if err != nil {
			return nil, err
		}
		verdicts = append(verdicts, verdict)
	}
	return verdicts, rows.Err()
}

// Latest returns the newest verdict for a digest.
func (l *Ledger) Latest(ctx context.Context, digest string) (*models.Verdict, error) {
	history, err := l.History(ctx, digest)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, ErrNotFound
	}
	return history[0], nil
}

// VerifyChain recomputes the HMAC chain for one digest from the first
// entry and compares against the stored tags.
func (l *Ledger) VerifyChain(ctx context.Context, digest string) error {
	history, err := l.History(ctx, digest)
	if err != nil {
		return err
	}

	prevTag := ""
	for i := len(history) - 1; i >= 0; i-- {
		verdict := history[i]
		expected := l.chainTag(prevTag, verdict)
		if !hmac.Equal([]byte(expected), []byte(verdict.ChainTag)) {
			return fmt.Errorf("%w: entry %s", ErrChainBroken, verdict.ID)
		}
		prevTag = verdict.ChainTag
	}
	return nil
}

func (l *Ledger) chainTag(prevTag string, verdict *models.Verdict) string {
	mac := hmac.New(sha256.New, l.secret)
	mac.Write([]byte(prevTag))
	mac.Write(verdict.CanonicalBytes())
	return hex.EncodeToString(mac.Sum(nil))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVerdict(row rowScanner) (*models.Verdict, error) {
	verdict := &models.Verdict{}
	var label, resultIDs, degraded string
	err := row.Scan(
		&verdict.ID,
		&verdict.RunID,
		&verdict.Digest,
		&verdict.Score,
		&label,
		&verdict.PolicyVersion,
		&resultIDs,
		&degraded,
		&verdict.ChainTag,
		&verdict.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan verdict: %w", err)
	}

	verdict.Label = fusion.Label(label)
	if err := json.Unmarshal([]byte(resultIDs), &verdict.ResultIDs); err != nil {
		verdict.ResultIDs = []string{}
	}
	if err := json.Unmarshal([]byte(degraded), &verdict.Degraded); err != nil {
		verdict.Degraded = []string{}
	}
	return verdict, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // sqlite
		strings.Contains(msg, "duplicate key value") // postgres
}
