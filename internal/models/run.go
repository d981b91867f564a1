package models

import (
	"time"

	"github.com/google/uuid"
)

// RunState is one station of the per-artifact analysis state machine.
// Transitions are one-directional; a re-analysis request starts a fresh run
// sharing the same digest.
type RunState string

const (
	RunReceived  RunState = "received"
	RunIngested  RunState = "ingested"
	RunAnalyzing RunState = "analyzing"
	RunFused     RunState = "fused"
	RunRecorded  RunState = "recorded"
	RunFailed    RunState = "failed"
)

// Terminal reports whether no further transition can happen.
func (s RunState) Terminal() bool {
	return s == RunRecorded || s == RunFailed
}

// Run is one pass of the pipeline over an artifact.
type Run struct {
	ID            string     `json:"id"`
	Digest        string     `json:"digest"`
	State         RunState   `json:"state"`
	FailureReason string     `json:"failure_reason,omitempty"`
	PolicyVersion string     `json:"policy_version"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

func NewRun(digest, policyVersion string) *Run {
	return &Run{
		ID:            uuid.New().String(),
		Digest:        digest,
		State:         RunReceived,
		PolicyVersion: policyVersion,
		StartedAt:     time.Now().UTC(),
	}
}
