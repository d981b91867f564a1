package detector

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"math"

	"github.com/rs/zerolog"

	"github.com/verifyai/verifyai/internal/media"
)

const (
	// ELAName identifies the compression-anomaly detector.
	ELAName = "ela"

	elaRecompressQuality = 90
	elaBlockSize         = 8
	// A block is anomalous when its re-compression error is far below the
	// image-wide mean: genuine single-pass JPEG shows roughly uniform
	// error, while a region re-saved on its own shows almost none.
	elaLowErrorRatio = 0.25
	// Below this mean error the whole image is effectively error-free
	// (flat synthetic content) and low blocks carry no signal.
	elaMeanErrorFloor = 2.0
	// Fraction of anomalous area that maps to score 1.0.
	elaSaturationArea = 0.25

	elaMaxReportedBlocks = 64
)

// Dimensions typical of generative model output (DALL-E, Midjourney,
// Stable Diffusion defaults). Recorded as evidence only; the score comes
// from the error analysis.
var aiTypicalDimensions = map[[2]int]bool{
	{512, 512}: true, {768, 768}: true, {1024, 1024}: true,
	{1024, 1792}: true, {1792, 1024}: true,
	{512, 768}: true, {768, 512}: true,
	{1024, 768}: true, {768, 1024}: true,
}

type elaBlock struct {
	Row   int     `json:"row"`
	Col   int     `json:"col"`
	Error float64 `json:"error"`
}

type elaEvidence struct {
	MeanError       float64    `json:"mean_error"`
	MaxError        float64    `json:"max_error"`
	StdError        float64    `json:"std_error"`
	BlockCount      int        `json:"block_count"`
	AnomalousBlocks []elaBlock `json:"anomalous_blocks"`
	AnomalousArea   float64    `json:"anomalous_area"`
	Width           int        `json:"width"`
	Height          int        `json:"height"`
	AITypicalDims   bool       `json:"ai_typical_dimensions"`
	FrameSampled    bool       `json:"frame_sampled,omitempty"`
}

// ELADetector performs error-level analysis: re-compress at a fixed quality
// and look for regions whose error is anomalously low relative to the rest
// of the image, indicating a locally re-saved (edited) area.
type ELADetector struct {
	log zerolog.Logger
}

func NewELADetector(logger zerolog.Logger) *ELADetector {
	return &ELADetector{log: logger.With().Str("detector", ELAName).Logger()}
}

func (d *ELADetector) Name() string { return ELAName }

func (d *ELADetector) Analyze(ctx context.Context, in Input) Result {
	imageBytes := in.Bytes
	frameSampled := false
	if in.Kind == media.KindVideo {
		if in.Frame == nil {
			return skipped(ELAName, "no frame available for video artifact")
		}
		imageBytes = in.Frame
		frameSampled = true
	}

	img, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return failed(ELAName, fmt.Sprintf("decode image: %v", err))
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: elaRecompressQuality}); err != nil {
		return failed(ELAName, fmt.Sprintf("re-encode image: %v", err))
	}
	resaved, err := jpeg.Decode(bytes.NewReader(buf.Bytes()))
	if err != nil {
		return failed(ELAName, fmt.Sprintf("decode re-encoded image: %v", err))
	}

	if err := ctx.Err(); err != nil {
		return failed(ELAName, fmt.Sprintf("cancelled: %v", err))
	}

	evidence, score := analyzeBlocks(img, resaved)
	evidence.FrameSampled = frameSampled

	d.log.Debug().
		Str("digest", in.Digest).
		Float64("score", score).
		Float64("anomalous_area", evidence.AnomalousArea).
		Msg("error-level analysis complete")

	return succeeded(ELAName, score, evidence)
}

func analyzeBlocks(original, resaved image.Image) (elaEvidence, float64) {
	bounds := original.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	cols, rows := width/elaBlockSize, height/elaBlockSize

	evidence := elaEvidence{
		Width:           width,
		Height:          height,
		AITypicalDims:   aiTypicalDimensions[[2]int{width, height}],
		AnomalousBlocks: []elaBlock{},
	}

	if cols == 0 || rows == 0 {
		return evidence, 0
	}

	blockErrors := make([]float64, 0, cols*rows)
	var sum, sumSq, maxErr float64

	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			blockErr := blockMeanError(original, resaved, bounds.Min.X+col*elaBlockSize, bounds.Min.Y+row*elaBlockSize)
			blockErrors = append(blockErrors, blockErr)
			sum += blockErr
			sumSq += blockErr * blockErr
			if blockErr > maxErr {
				maxErr = blockErr
			}
		}
	}

	n := float64(len(blockErrors))
	mean := sum / n
	variance := sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}

	evidence.MeanError = mean
	evidence.MaxError = maxErr
	evidence.StdError = math.Sqrt(variance)
	evidence.BlockCount = len(blockErrors)

	if mean < elaMeanErrorFloor {
		return evidence, 0
	}

	anomalous := 0
	for i, blockErr := range blockErrors {
		if blockErr < mean*elaLowErrorRatio {
			anomalous++
			if len(evidence.AnomalousBlocks) < elaMaxReportedBlocks {
				evidence.AnomalousBlocks = append(evidence.AnomalousBlocks, elaBlock{
					Row: i / cols, Col: i % cols, Error: blockErr,
				})
			}
		}
	}

	evidence.AnomalousArea = float64(anomalous) / n

	score := evidence.AnomalousArea / elaSaturationArea
	if score > 1.0 {
		score = 1.0
	}
	return evidence, score
}

// blockMeanError is the mean absolute RGB difference over one 8x8 block.
func blockMeanError(original, resaved image.Image, x0, y0 int) float64 {
	var total float64
	for y := y0; y < y0+elaBlockSize; y++ {
		for x := x0; x < x0+elaBlockSize; x++ {
			or, og, ob, _ := original.At(x, y).RGBA()
			rr, rg, rb, _ := resaved.At(x, y).RGBA()
			total += absDiff(or, rr) + absDiff(og, rg) + absDiff(ob, rb)
		}
	}
	// RGBA returns 16-bit channels; normalize back to 8-bit scale.
	return total / (3 * elaBlockSize * elaBlockSize * 257)
}

func absDiff(a, b uint32) float64 {
	if a > b {
		return float64(a - b)
	}
	return float64(b - a)
}
