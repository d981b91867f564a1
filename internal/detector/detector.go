package detector

import (
	"context"
	"encoding/json"
	"time"

	"github.com/verifyai/verifyai/internal/media"
)

// Status is the terminal state of one detector invocation.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Input is everything a detector may need for one artifact. Detectors must
// tolerate running with partial input (no frame, no metadata).
type Input struct {
	Digest string
	Kind   media.Kind
	Bytes  []byte
	// Frame is a representative still for video artifacts; nil when frame
	// sampling is unavailable.
	Frame []byte
}

// Result is the immutable outcome of one (artifact, detector) invocation.
// Score means probability of manipulation, not probability of authenticity.
// A failed result carries no score and must never enter fusion as zero.
type Result struct {
	Detector string          `json:"detector"`
	Status   Status          `json:"status"`
	Score    *float64        `json:"score,omitempty"`
	Evidence json.RawMessage `json:"evidence,omitempty"`
	Elapsed  time.Duration   `json:"elapsed_ns"`
}

// Detector is one independent analyzer. Implementations are read-only with
// respect to the artifact and safe for concurrent use.
type Detector interface {
	Name() string
	Analyze(ctx context.Context, in Input) Result
}

// Setting controls one detector for a single analysis run.
type Setting struct {
	Weight  float64
	Enabled bool
}

// Config maps detector name to its per-run setting. It is resolved per
// analysis run and passed in explicitly; there is no ambient registry.
type Config map[string]Setting

func succeeded(name string, score float64, evidence any) Result {
	raw, err := json.Marshal(evidence)
	if err != nil {
		raw = nil
	}
	return Result{Detector: name, Status: StatusSucceeded, Score: &score, Evidence: raw}
}

func failed(name, reason string) Result {
	raw, _ := json.Marshal(map[string]string{"failure": reason})
	return Result{Detector: name, Status: StatusFailed, Evidence: raw}
}

func skipped(name, reason string) Result {
	raw, _ := json.Marshal(map[string]string{"skipped": reason})
	return Result{Detector: name, Status: StatusSkipped, Evidence: raw}
}
