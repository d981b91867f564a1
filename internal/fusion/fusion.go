package fusion

import (
	"errors"
	"sort"

	"github.com/verifyai/verifyai/internal/detector"
)

// ErrInsufficientEvidence means zero detectors succeeded: the artifact is
// not verifiable, which is distinct from being authentic.
var ErrInsufficientEvidence = errors.New("insufficient evidence: no detector succeeded")

// Label is the discrete verdict class derived from the fused score.
type Label string

const (
	LabelAuthentic         Label = "authentic"
	LabelSuspicious        Label = "suspicious"
	LabelLikelyManipulated Label = "likely-manipulated"
)

// Policy is the versioned set of detector weights and label thresholds.
// Weights sum to 1.0 across the full detector set; fusion renormalizes over
// the succeeded subset. The version is recorded with every verdict so
// historical verdicts stay interpretable after weight changes.
type Policy struct {
	Version       string             `json:"version"`
	Weights       map[string]float64 `json:"weights"`
	SuspiciousAt  float64            `json:"suspicious_at"`
	ManipulatedAt float64            `json:"manipulated_at"`
}

// DefaultPolicy is the v1 policy. The values are defaults, not calibrated
// constants; deployments override them through configuration.
func DefaultPolicy() Policy {
	return Policy{
		Version: "v1",
		Weights: map[string]float64{
			detector.ELAName:   0.40,
			detector.PHashName: 0.25,
			detector.ModelName: 0.35,
		},
		SuspiciousAt:  0.3,
		ManipulatedAt: 0.7,
	}
}

// Verdict is the fused judgment before it is persisted to the ledger.
type Verdict struct {
	Score         float64  `json:"score"`
	Label         Label    `json:"label"`
	PolicyVersion string   `json:"policy_version"`
	// Contributing lists the detectors whose scores entered the weighted
	// average, Degraded the ones that failed or were skipped. Both are
	// part of the evidence trail.
	Contributing []string `json:"contributing"`
	Degraded     []string `json:"degraded"`
}

// Fuse combines detector results into one verdict. Only succeeded results
// participate; missing detectors shift weight proportionally onto the rest
// rather than counting as zero, which keeps the score deterministic and
// fair under partial failure.
func Fuse(results []detector.Result, policy Policy) (Verdict, error) {
	verdict := Verdict{
		PolicyVersion: policy.Version,
		Contributing:  []string{},
		Degraded:      []string{},
	}

	type weighted struct {
		name   string
		score  float64
		weight float64
	}
	var succeeded []weighted

	for _, result := range results {
		if result.Status != detector.StatusSucceeded || result.Score == nil {
			verdict.Degraded = append(verdict.Degraded, result.Detector)
			continue
		}
		succeeded = append(succeeded, weighted{
			name:   result.Detector,
			score:  *result.Score,
			weight: policy.Weights[result.Detector],
		})
	}
	sort.Strings(verdict.Degraded)

	if len(succeeded) == 0 {
		return Verdict{}, ErrInsufficientEvidence
	}

	// Fixed accumulation order keeps float addition reproducible.
	sort.Slice(succeeded, func(i, j int) bool { return succeeded[i].name < succeeded[j].name })

	var totalWeight, weightedSum float64
	for _, s := range succeeded {
		totalWeight += s.weight
		weightedSum += s.weight * s.score
		verdict.Contributing = append(verdict.Contributing, s.name)
	}

	if totalWeight == 0 {
		// Every succeeded detector has zero policy weight; an unweighted
		// mean is still better evidence than refusing the verdict.
		for _, s := range succeeded {
			weightedSum += s.score
		}
		verdict.Score = weightedSum / float64(len(succeeded))
	} else {
		verdict.Score = weightedSum / totalWeight
	}

	verdict.Label = policy.Classify(verdict.Score)
	return verdict, nil
}

// Classify maps a fused score onto a discrete label. Boundaries belong to
// the more severe class: exactly SuspiciousAt is suspicious, exactly
// ManipulatedAt is likely-manipulated.
func (p Policy) Classify(score float64) Label {
	switch {
	case score >= p.ManipulatedAt:
		return LabelLikelyManipulated
	case score >= p.SuspiciousAt:
		return LabelSuspicious
	default:
		return LabelAuthentic
	}
}
