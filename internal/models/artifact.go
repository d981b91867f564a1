package models

import (
	"time"

	"github.com/verifyai/verifyai/internal/media"
)

// Artifact is the immutable record of one submitted media file, keyed by
// the SHA-256 digest of its raw bytes. Re-submitting identical bytes
// returns the existing record.
type Artifact struct {
	Digest       string     `json:"digest"`
	Kind         media.Kind `json:"media_kind"`
	DeclaredMIME string     `json:"declared_mime"`
	DetectedMIME string     `json:"detected_mime"`
	SizeBytes    int64      `json:"size_bytes"`
	IngestedAt   time.Time  `json:"ingested_at"`
}

func NewArtifact(digest string, kind media.Kind, declaredMIME, detectedMIME string, size int64) *Artifact {
	return &Artifact{
		Digest:       digest,
		Kind:         kind,
		DeclaredMIME: declaredMIME,
		DetectedMIME: detectedMIME,
		SizeBytes:    size,
		IngestedAt:   time.Now().UTC(),
	}
}
