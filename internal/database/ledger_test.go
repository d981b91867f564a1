package database

import (
	"context"
	"errors"
	"testing"

	"github.com/verifyai/verifyai/internal/fusion"
	"github.com/verifyai/verifyai/internal/models"
)

func testVerdict(digest string, score float64, policyVersion string) *models.Verdict {
	label := fusion.LabelAuthentic
	if score >= 0.7 {
		label = fusion.LabelLikelyManipulated
	} else if score >= 0.3 {
		label = fusion.LabelSuspicious
	}
	fused := fusion.Verdict{
		Score:         score,
		Label:         label,
		PolicyVersion: policyVersion,
		Degraded:      []string{},
	}
	return models.NewVerdict(models.NewRun(digest, policyVersion).ID, digest, fused, []string{})
}

func TestLedger_AppendAndHistory(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ledger := NewLedger(db, []byte("test-secret"))
	ctx := context.Background()

	first := testVerdict(testDigest, 0.1, "v1")
	if _, err := ledger.Append(ctx, first); err != nil {
		t.Fatalf("Failed to append first verdict: %v", err)
	}
	if first.ChainTag == "" {
		t.Error("Expected chain tag on appended verdict")
	}

	second := testVerdict(testDigest, 0.8, "v2")
	if _, err := ledger.Append(ctx, second); err != nil {
		t.Fatalf("Failed to append second verdict: %v", err)
	}
	if second.ChainTag == first.ChainTag {
		t.Error("Expected distinct chain tags")
	}

	t.Run("HistoryNewestFirst", func(t *testing.T) {
		history, err := ledger.History(ctx, testDigest)
		if err != nil {
			t.Fatalf("Failed to read history: %v", err)
		}
		if len(history) != 2 {
			t.Fatalf("Expected 2 entries, got %d", len(history))
		}
		if history[0].ID != second.ID || history[1].ID != first.ID {
			t.Error("Expected history ordered newest first")
		}
		// A policy change never rewrites old entries.
		if history[1].PolicyVersion != "v1" || history[0].PolicyVersion != "v2" {
			t.Errorf("Expected both policy versions retained, got %s and %s",
				history[1].PolicyVersion, history[0].PolicyVersion)
		}
	})

	t.Run("Latest", func(t *testing.T) {
		latest, err := ledger.Latest(ctx, testDigest)
		if err != nil {
			t.Fatalf("Failed to get latest: %v", err)
		}
		if latest.ID != second.ID {
			t.Errorf("Expected latest %s, got %s", second.ID, latest.ID)
		}
		if latest.Label != fusion.LabelLikelyManipulated {
			t.Errorf("Expected label %s, got %s", fusion.LabelLikelyManipulated, latest.Label)
		}
	})

	t.Run("LatestUnknownDigest", func(t *testing.T) {
		_, err := ledger.Latest(ctx, "eeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

func TestLedger_VerifyChain(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ledger := NewLedger(db, []byte("test-secret"))
	ctx := context.Background()

	for _, score := range []float64{0.1, 0.5, 0.9} {
		if _, err := ledger.Append(ctx, testVerdict(testDigest, score, "v1")); err != nil {
			t.Fatalf("Failed to append verdict: %v", err)
		}
	}

	if err := ledger.VerifyChain(ctx, testDigest); err != nil {
		t.Fatalf("Expected intact chain to verify: %v", err)
	}

	t.Run("TamperDetected", func(t *testing.T) {
		// Rewrite a recorded score behind the ledger's back.
		if _, err := db.Conn().ExecContext(ctx,
			`UPDATE verdicts SET score = 0.0 WHERE digest = $1 AND seq = 2`, testDigest); err != nil {
			t.Fatalf("Failed to tamper with row: %v", err)
		}

		err := ledger.VerifyChain(ctx, testDigest)
		if !errors.Is(err, ErrChainBroken) {
			t.Errorf("Expected ErrChainBroken after tampering, got %v", err)
		}
	})

	t.Run("WrongSecret", func(t *testing.T) {
		other := NewLedger(db, []byte("different-secret"))
		digest := "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"
		if _, err := ledger.Append(ctx, testVerdict(digest, 0.2, "v1")); err != nil {
			t.Fatalf("Failed to append verdict: %v", err)
		}
		if err := other.VerifyChain(ctx, digest); !errors.Is(err, ErrChainBroken) {
			t.Errorf("Expected ErrChainBroken under a different secret, got %v", err)
		}
	})
}
