package detector

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"math"
	"math/bits"
	"sort"

	"github.com/rs/zerolog"

	"github.com/verifyai/verifyai/internal/media"
)

const (
	// PHashName identifies the perceptual-similarity detector.
	PHashName = "phash"

	phashSize     = 32 // downscale edge before the DCT
	phashHashEdge = 8  // top-left DCT block kept for the hash

	// DefaultHammingThreshold is the max bit distance still considered a
	// match against the reference corpus.
	DefaultHammingThreshold = 16
)

// Reference is one corpus entry: the perceptual hash of a known-manipulated
// (or known-original) artifact.
type Reference struct {
	Digest string
	Hash   uint64
	Label  string // "manipulated" or "original"
}

// ReferenceSource provides the corpus to compare against. The database
// package supplies the production implementation.
type ReferenceSource interface {
	KnownManipulated(ctx context.Context) ([]Reference, error)
}

type phashEvidence struct {
	Hash          string  `json:"hash"`
	CorpusSize    int     `json:"corpus_size"`
	BestMatch     string  `json:"best_match,omitempty"`
	BestDistance  int     `json:"best_distance"`
	Threshold     int     `json:"threshold"`
	WithinCorpus  bool    `json:"within_corpus"`
	FrameSampled  bool    `json:"frame_sampled,omitempty"`
	MatchStrength float64 `json:"match_strength"`
}

// PHashDetector fingerprints the artifact with a 64-bit DCT perceptual hash
// and scores by Hamming distance to the nearest known-manipulated reference.
type PHashDetector struct {
	refs      ReferenceSource
	threshold int
	log       zerolog.Logger
}

func NewPHashDetector(refs ReferenceSource, threshold int, logger zerolog.Logger) *PHashDetector {
	if threshold <= 0 {
		threshold = DefaultHammingThreshold
	}
	return &PHashDetector{
		refs:      refs,
		threshold: threshold,
		log:       logger.With().Str("detector", PHashName).Logger(),
	}
}

func (d *PHashDetector) Name() string { return PHashName }

func (d *PHashDetector) Analyze(ctx context.Context, in Input) Result {
	imageBytes := in.Bytes
	frameSampled := false
	if in.Kind == media.KindVideo {
		if in.Frame == nil {
			return skipped(PHashName, "no frame available for video artifact")
		}
		imageBytes = in.Frame
		frameSampled = true
	}

	hash, err := PerceptualHash(imageBytes)
	if err != nil {
		return failed(PHashName, fmt.Sprintf("compute hash: %v", err))
	}

	refs, err := d.refs.KnownManipulated(ctx)
	if err != nil {
		return failed(PHashName, fmt.Sprintf("load reference corpus: %v", err))
	}

	evidence := phashEvidence{
		Hash:         fmt.Sprintf("%016x", hash),
		CorpusSize:   len(refs),
		Threshold:    d.threshold,
		FrameSampled: frameSampled,
	}

	bestDist := -1
	for _, ref := range refs {
		dist := bits.OnesCount64(hash ^ ref.Hash)
		if bestDist < 0 || dist < bestDist {
			bestDist = dist
			evidence.BestMatch = ref.Digest
			evidence.BestDistance = dist
		}
	}

	score := 0.0
	if bestDist >= 0 && bestDist <= d.threshold {
		// Inverse-distance score: an exact hash match is 1.0, a match at
		// the threshold contributes nothing.
		score = float64(d.threshold-bestDist) / float64(d.threshold)
		evidence.WithinCorpus = true
	}
	evidence.MatchStrength = score

	d.log.Debug().
		Str("digest", in.Digest).
		Int("corpus", len(refs)).
		Int("best_distance", bestDist).
		Float64("score", score).
		Msg("perceptual hash compared")

	return succeeded(PHashName, score, evidence)
}

// PerceptualHash computes a 64-bit DCT hash: downscale to 32x32 grayscale,
// apply a 2D DCT-II, keep the top-left 8x8 low-frequency block minus the DC
// term, and set each bit by comparison against the block median.
func PerceptualHash(imageBytes []byte) (uint64, error) {
	img, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return 0, fmt.Errorf("decode image: %w", err)
	}

	gray := downscaleGray(img, phashSize)
	freq := dct2D(gray)

	coeffs := make([]float64, 0, phashHashEdge*phashHashEdge)
	for y := 0; y < phashHashEdge; y++ {
		for x := 0; x < phashHashEdge; x++ {
			coeffs = append(coeffs, freq[y][x])
		}
	}

	// Median over the block excluding the DC coefficient, which only
	// encodes overall brightness.
	sorted := make([]float64, len(coeffs)-1)
	copy(sorted, coeffs[1:])
	sort.Float64s(sorted)
	median := (sorted[len(sorted)/2-1] + sorted[len(sorted)/2]) / 2

	var hash uint64
	for i, c := range coeffs {
		if i == 0 {
			continue
		}
		hash <<= 1
		if c > median {
			hash |= 1
		}
	}
	return hash, nil
}

// downscaleGray box-averages the image into an edge x edge grayscale grid.
func downscaleGray(img image.Image, edge int) [][]float64 {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	grid := make([][]float64, edge)
	for gy := 0; gy < edge; gy++ {
		grid[gy] = make([]float64, edge)
		for gx := 0; gx < edge; gx++ {
			x0 := bounds.Min.X + gx*width/edge
			x1 := bounds.Min.X + (gx+1)*width/edge
			y0 := bounds.Min.Y + gy*height/edge
			y1 := bounds.Min.Y + (gy+1)*height/edge
			if x1 <= x0 {
				x1 = x0 + 1
			}
			if y1 <= y0 {
				y1 = y0 + 1
			}

			var sum float64
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					r, g, b, _ := img.At(x, y).RGBA()
					sum += 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
				}
			}
			grid[gy][gx] = sum / float64((x1-x0)*(y1-y0)) / 257
		}
	}
	return grid
}

// dct2D is a straight DCT-II over the grid, row pass then column pass.
func dct2D(grid [][]float64) [][]float64 {
	n := len(grid)

	rows := make([][]float64, n)
	for y := 0; y < n; y++ {
		rows[y] = dct1D(grid[y])
	}

	out := make([][]float64, n)
	for y := 0; y < n; y++ {
		out[y] = make([]float64, n)
	}
	col := make([]float64, n)
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			col[y] = rows[y][x]
		}
		transformed := dct1D(col)
		for y := 0; y < n; y++ {
			out[y][x] = transformed[y]
		}
	}
	return out
}

func dct1D(in []float64) []float64 {
	n := len(in)
	out := make([]float64, n)
	for k := 0; k < n; k++ {
		var sum float64
		for i := 0; i < n; i++ {
			sum += in[i] * math.Cos(math.Pi*float64(k)*(2*float64(i)+1)/(2*float64(n)))
		}
		out[k] = sum
	}
	return out
}
