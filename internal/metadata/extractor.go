package metadata

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/verifyai/verifyai/internal/media"
)

// Extractor reads container-level metadata without decoding pixel or frame
// data. One extraction per artifact; results are persisted 1:1 with it.
type Extractor struct {
	log zerolog.Logger
	now func() time.Time
}

func NewExtractor(logger zerolog.Logger) *Extractor {
	return &Extractor{
		log: logger.With().Str("component", "metadata").Logger(),
		now: time.Now,
	}
}

// Extract parses the artifact's container and applies the inconsistency
// policy. Containers we can identify but carry no metadata section (WebP,
// GIF, WebM) yield a stripped finding set, not an error.
func (e *Extractor) Extract(data []byte) (*Findings, error) {
	info, err := media.Sniff(data)
	if err != nil {
		return nil, ErrUnsupportedFormat
	}

	var findings *Findings
	switch info.MIME {
	case "image/jpeg":
		findings = parseJPEG(data)
	case "image/png":
		findings = parsePNG(data)
	case "video/mp4", "video/quicktime":
		findings = parseMP4(data)
	default:
		findings = &Findings{}
	}

	findings.ExtractedAt = e.now()
	findings.applyPolicy()

	e.log.Debug().
		Str("mime", info.MIME).
		Int("flags", len(findings.Flags)).
		Msg("metadata extracted")

	return findings, nil
}
