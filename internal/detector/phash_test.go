package detector

import (
	"context"
	"errors"
	"image/color"
	"math/bits"
	"testing"

	"github.com/rs/zerolog"

	"github.com/verifyai/verifyai/internal/media"
)

type stubRefs struct {
	refs []Reference
	err  error
}

func (s *stubRefs) KnownManipulated(ctx context.Context) ([]Reference, error) {
	return s.refs, s.err
}

func TestPerceptualHash_Stable(t *testing.T) {
	data := encodeJPEG(t, noiseImage(100, 100), 85)

	first, err := PerceptualHash(data)
	if err != nil {
		t.Fatalf("Failed to hash: %v", err)
	}
	second, err := PerceptualHash(data)
	if err != nil {
		t.Fatalf("Failed to hash: %v", err)
	}
	if first != second {
		t.Errorf("Expected identical hashes for identical bytes, got %016x and %016x", first, second)
	}
}

func TestPerceptualHash_DistinguishesImages(t *testing.T) {
	noise := encodeJPEG(t, noiseImage(100, 100), 85)
	flat := encodeJPEG(t, flatImage(100, 100, color.RGBA{R: 30, G: 60, B: 90, A: 255}), 85)

	noiseHash, err := PerceptualHash(noise)
	if err != nil {
		t.Fatalf("Failed to hash: %v", err)
	}
	flatHash, err := PerceptualHash(flat)
	if err != nil {
		t.Fatalf("Failed to hash: %v", err)
	}
	if noiseHash == flatHash {
		t.Error("Expected structurally different images to hash differently")
	}
}

func TestPerceptualHash_SurvivesRecompression(t *testing.T) {
	// Structured content: pHash keys on low-frequency structure, which a
	// quality change must not disturb.
	img := flatImage(100, 100, color.RGBA{A: 255})
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 2), G: uint8(y * 2), B: uint8((x + y)), A: 255})
		}
	}
	original := encodeJPEG(t, img, 95)
	recompressed := encodeJPEG(t, img, 50)

	h1, err := PerceptualHash(original)
	if err != nil {
		t.Fatalf("Failed to hash: %v", err)
	}
	h2, err := PerceptualHash(recompressed)
	if err != nil {
		t.Fatalf("Failed to hash: %v", err)
	}

	if dist := bits.OnesCount64(h1 ^ h2); dist > DefaultHammingThreshold {
		t.Errorf("Expected recompressed copy within threshold %d, got distance %d", DefaultHammingThreshold, dist)
	}
}

func TestPHash_ExactCorpusMatch(t *testing.T) {
	data := encodeJPEG(t, noiseImage(100, 100), 85)
	hash, err := PerceptualHash(data)
	if err != nil {
		t.Fatalf("Failed to hash: %v", err)
	}

	refs := &stubRefs{refs: []Reference{{Digest: "known-fake", Hash: hash, Label: "manipulated"}}}
	d := NewPHashDetector(refs, DefaultHammingThreshold, zerolog.Nop())

	result := d.Analyze(context.Background(), Input{Digest: "test", Kind: media.KindImage, Bytes: data})
	if result.Status != StatusSucceeded {
		t.Fatalf("Expected succeeded, got %s", result.Status)
	}
	if result.Score == nil || *result.Score != 1.0 {
		t.Errorf("Expected score 1.0 for exact corpus match, got %v", result.Score)
	}

	evidence := decodeEvidence(t, result)
	if evidence["best_match"] != "known-fake" {
		t.Errorf("Expected best match 'known-fake', got %v", evidence["best_match"])
	}
	if evidence["within_corpus"] != true {
		t.Error("Expected within_corpus in evidence")
	}
}

func TestPHash_EmptyCorpus(t *testing.T) {
	data := encodeJPEG(t, noiseImage(100, 100), 85)
	d := NewPHashDetector(&stubRefs{}, DefaultHammingThreshold, zerolog.Nop())

	result := d.Analyze(context.Background(), Input{Digest: "test", Kind: media.KindImage, Bytes: data})
	if result.Status != StatusSucceeded {
		t.Fatalf("Expected succeeded, got %s", result.Status)
	}
	if result.Score == nil || *result.Score != 0 {
		t.Errorf("Expected score 0 with empty corpus, got %v", result.Score)
	}
}

func TestPHash_CorpusUnavailable(t *testing.T) {
	data := encodeJPEG(t, noiseImage(100, 100), 85)
	d := NewPHashDetector(&stubRefs{err: errors.New("db down")}, DefaultHammingThreshold, zerolog.Nop())

	result := d.Analyze(context.Background(), Input{Digest: "test", Kind: media.KindImage, Bytes: data})
	if result.Status != StatusFailed {
		t.Errorf("Expected failed when corpus cannot load, got %s", result.Status)
	}
}

func TestPHash_VideoWithoutFrame(t *testing.T) {
	d := NewPHashDetector(&stubRefs{}, DefaultHammingThreshold, zerolog.Nop())

	result := d.Analyze(context.Background(), Input{Digest: "test", Kind: media.KindVideo, Bytes: []byte("container")})
	if result.Status != StatusSkipped {
		t.Errorf("Expected skipped without a sampled frame, got %s", result.Status)
	}
}
