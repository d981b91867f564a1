package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/verifyai/verifyai/internal/fusion"
)

// StoredResult is the persisted form of one detector invocation,
// immutable once written.
type StoredResult struct {
	ID        string          `json:"id"`
	RunID     string          `json:"run_id"`
	Digest    string          `json:"digest"`
	Detector  string          `json:"detector"`
	Status    string          `json:"status"`
	Score     *float64        `json:"score,omitempty"`
	Evidence  json.RawMessage `json:"evidence,omitempty"`
	ElapsedMS int64           `json:"elapsed_ms"`
	CreatedAt time.Time       `json:"created_at"`
}

// Verdict is one append-only ledger entry: the fused judgment for an
// artifact under one fusion-policy version. ChainTag links the entry to its
// predecessor for the same digest (HMAC over the previous tag and the
// canonical verdict bytes), making the history tamper-evident.
type Verdict struct {
	ID            string       `json:"id"`
	RunID         string       `json:"run_id"`
	Digest        string       `json:"digest"`
	Score         float64      `json:"score"`
	Label         fusion.Label `json:"label"`
	PolicyVersion string       `json:"policy_version"`
	ResultIDs     []string     `json:"result_ids"`
	Degraded      []string     `json:"degraded"`
	ChainTag      string       `json:"chain_tag,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

func NewVerdict(runID, digest string, fused fusion.Verdict, resultIDs []string) *Verdict {
	return &Verdict{
		ID:            uuid.New().String(),
		RunID:         runID,
		Digest:        digest,
		Score:         fused.Score,
		Label:         fused.Label,
		PolicyVersion: fused.PolicyVersion,
		ResultIDs:     resultIDs,
		Degraded:      fused.Degraded,
		CreatedAt:     time.Now().UTC(),
	}
}

// CanonicalBytes is the deterministic serialization signed into the ledger
// chain. The chain tag itself is excluded.
func (v *Verdict) CanonicalBytes() []byte {
	canonical := struct {
		ID            string       `json:"id"`
		RunID         string       `json:"run_id"`
		Digest        string       `json:"digest"`
		Score         float64      `json:"score"`
		Label         fusion.Label `json:"label"`
		PolicyVersion string       `json:"policy_version"`
		ResultIDs     []string     `json:"result_ids"`
		Degraded      []string     `json:"degraded"`
		CreatedAt     int64        `json:"created_at_unix_nano"`
	}{
		ID:            v.ID,
		RunID:         v.RunID,
		Digest:        v.Digest,
		Score:         v.Score,
		Label:         v.Label,
		PolicyVersion: v.PolicyVersion,
		ResultIDs:     v.ResultIDs,
		Degraded:      v.Degraded,
		CreatedAt:     v.CreatedAt.UnixNano(),
	}
	raw, _ := json.Marshal(canonical)
	return raw
}
