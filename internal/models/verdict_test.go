package models

import (
	"bytes"
	"testing"

	"github.com/verifyai/verifyai/internal/fusion"
)

func TestRunState_Terminal(t *testing.T) {
	for _, state := range []RunState{RunReceived, RunIngested, RunAnalyzing, RunFused} {
		if state.Terminal() {
			t.Errorf("Expected %s to be non-terminal", state)
		}
	}
	for _, state := range []RunState{RunRecorded, RunFailed} {
		if !state.Terminal() {
			t.Errorf("Expected %s to be terminal", state)
		}
	}
}

func TestVerdict_CanonicalBytes(t *testing.T) {
	fused := fusion.Verdict{
		Score:         0.42,
		Label:         fusion.LabelSuspicious,
		PolicyVersion: "v1",
		Degraded:      []string{"model"},
	}
	verdict := NewVerdict("run-1", "digest-1", fused, []string{"res-1"})

	first := verdict.CanonicalBytes()
	second := verdict.CanonicalBytes()
	if !bytes.Equal(first, second) {
		t.Error("Expected canonical bytes to be deterministic")
	}

	// The chain tag is derived from the canonical bytes and must not feed
	// back into them.
	verdict.ChainTag = "deadbeef"
	if !bytes.Equal(first, verdict.CanonicalBytes()) {
		t.Error("Expected chain tag to be excluded from canonical bytes")
	}

	verdict.Score = 0.43
	if bytes.Equal(first, verdict.CanonicalBytes()) {
		t.Error("Expected score change to alter canonical bytes")
	}
}
