package fusion

import (
	"math"
	"testing"

	"github.com/verifyai/verifyai/internal/detector"
)

func succeededResult(name string, score float64) detector.Result {
	return detector.Result{
		Detector: name,
		Status:   detector.StatusSucceeded,
		Score:    &score,
	}
}

func failedResult(name string) detector.Result {
	return detector.Result{
		Detector: name,
		Status:   detector.StatusFailed,
	}
}

func TestFuse_AllDetectors(t *testing.T) {
	policy := DefaultPolicy()
	results := []detector.Result{
		succeededResult(detector.ELAName, 0.8),
		succeededResult(detector.PHashName, 0.2),
		succeededResult(detector.ModelName, 0.6),
	}

	verdict, err := Fuse(results, policy)
	if err != nil {
		t.Fatalf("Failed to fuse: %v", err)
	}

	// 0.40*0.8 + 0.25*0.2 + 0.35*0.6 = 0.58
	if math.Abs(verdict.Score-0.58) > 1e-9 {
		t.Errorf("Expected score 0.58, got %f", verdict.Score)
	}
	if verdict.Label != LabelSuspicious {
		t.Errorf("Expected label %s, got %s", LabelSuspicious, verdict.Label)
	}
	if len(verdict.Contributing) != 3 {
		t.Errorf("Expected 3 contributing detectors, got %d", len(verdict.Contributing))
	}
	if len(verdict.Degraded) != 0 {
		t.Errorf("Expected no degraded detectors, got %v", verdict.Degraded)
	}
	if verdict.PolicyVersion != policy.Version {
		t.Errorf("Expected policy version %s, got %s", policy.Version, verdict.PolicyVersion)
	}
}

func TestFuse_RenormalizesOverSucceededSubset(t *testing.T) {
	policy := DefaultPolicy()
	results := []detector.Result{
		succeededResult(detector.ELAName, 0.8),
		failedResult(detector.PHashName),
		succeededResult(detector.ModelName, 0.6),
	}

	verdict, err := Fuse(results, policy)
	if err != nil {
		t.Fatalf("Failed to fuse: %v", err)
	}

	// (0.40*0.8 + 0.35*0.6) / 0.75 = 0.70666...
	want := (0.40*0.8 + 0.35*0.6) / 0.75
	if math.Abs(verdict.Score-want) > 1e-9 {
		t.Errorf("Expected score %f, got %f", want, verdict.Score)
	}
	if len(verdict.Degraded) != 1 || verdict.Degraded[0] != detector.PHashName {
		t.Errorf("Expected degraded [%s], got %v", detector.PHashName, verdict.Degraded)
	}
}

func TestFuse_SingleDetector(t *testing.T) {
	results := []detector.Result{
		succeededResult(detector.ELAName, 0.9),
		failedResult(detector.PHashName),
		failedResult(detector.ModelName),
	}

	verdict, err := Fuse(results, DefaultPolicy())
	if err != nil {
		t.Fatalf("Failed to fuse: %v", err)
	}

	if math.Abs(verdict.Score-0.9) > 1e-9 {
		t.Errorf("Expected score 0.9, got %f", verdict.Score)
	}
	if verdict.Label != LabelLikelyManipulated {
		t.Errorf("Expected label %s, got %s", LabelLikelyManipulated, verdict.Label)
	}
}

func TestFuse_AllFailed(t *testing.T) {
	results := []detector.Result{
		failedResult(detector.ELAName),
		failedResult(detector.PHashName),
		failedResult(detector.ModelName),
	}

	_, err := Fuse(results, DefaultPolicy())
	if err != ErrInsufficientEvidence {
		t.Errorf("Expected ErrInsufficientEvidence, got %v", err)
	}
}

func TestFuse_SkippedCountsAsDegraded(t *testing.T) {
	results := []detector.Result{
		succeededResult(detector.ELAName, 0.1),
		{Detector: detector.PHashName, Status: detector.StatusSkipped},
	}

	verdict, err := Fuse(results, DefaultPolicy())
	if err != nil {
		t.Fatalf("Failed to fuse: %v", err)
	}
	if len(verdict.Degraded) != 1 || verdict.Degraded[0] != detector.PHashName {
		t.Errorf("Expected degraded [%s], got %v", detector.PHashName, verdict.Degraded)
	}
}

func TestFuse_Deterministic(t *testing.T) {
	policy := DefaultPolicy()
	results := []detector.Result{
		succeededResult(detector.ModelName, 0.31),
		succeededResult(detector.ELAName, 0.77),
		succeededResult(detector.PHashName, 0.12),
	}
	reversed := []detector.Result{results[2], results[1], results[0]}

	first, err := Fuse(results, policy)
	if err != nil {
		t.Fatalf("Failed to fuse: %v", err)
	}
	second, err := Fuse(reversed, policy)
	if err != nil {
		t.Fatalf("Failed to fuse reversed: %v", err)
	}

	if first.Score != second.Score {
		t.Errorf("Expected identical scores regardless of input order, got %v and %v", first.Score, second.Score)
	}
	if first.Label != second.Label {
		t.Errorf("Expected identical labels, got %s and %s", first.Label, second.Label)
	}
}

func TestFuse_ZeroWeightsFallBackToMean(t *testing.T) {
	policy := Policy{
		Version:       "test",
		Weights:       map[string]float64{},
		SuspiciousAt:  0.3,
		ManipulatedAt: 0.7,
	}
	results := []detector.Result{
		succeededResult(detector.ELAName, 0.2),
		succeededResult(detector.PHashName, 0.4),
	}

	verdict, err := Fuse(results, policy)
	if err != nil {
		t.Fatalf("Failed to fuse: %v", err)
	}
	if math.Abs(verdict.Score-0.3) > 1e-9 {
		t.Errorf("Expected unweighted mean 0.3, got %f", verdict.Score)
	}
}

func TestClassify_Boundaries(t *testing.T) {
	policy := DefaultPolicy()

	cases := []struct {
		score float64
		want  Label
	}{
		{0.0, LabelAuthentic},
		{0.29999, LabelAuthentic},
		{0.3, LabelSuspicious},
		{0.5, LabelSuspicious},
		{0.69999, LabelSuspicious},
		{0.7, LabelLikelyManipulated},
		{1.0, LabelLikelyManipulated},
	}

	for _, tc := range cases {
		if got := policy.Classify(tc.score); got != tc.want {
			t.Errorf("Classify(%f): expected %s, got %s", tc.score, tc.want, got)
		}
	}
}
