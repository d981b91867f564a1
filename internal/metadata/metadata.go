package metadata

import (
	"errors"
	"strings"
	"time"
)

// Flag marks an inconsistency found in container metadata. Flags are
// evidence for the verdict's audit trail and are never silently dropped.
type Flag string

const (
	// FlagTimeInversion: modification timestamp precedes creation timestamp.
	FlagTimeInversion Flag = "TIME_INVERSION"
	// FlagEditorSignature: a known editing tool left its signature in the
	// encoder/software tag.
	FlagEditorSignature Flag = "EDITOR_SIGNATURE"
	// FlagMetadataStripped: the container carries no metadata at all, which
	// is common after re-export.
	FlagMetadataStripped Flag = "METADATA_STRIPPED"
)

// ErrUnsupportedFormat means the container could not be parsed at all.
// Absent metadata inside a parseable container is not an error.
var ErrUnsupportedFormat = errors.New("unsupported container format")

// Findings holds container-level metadata for one artifact.
type Findings struct {
	DeviceModel string     `json:"device_model,omitempty"`
	Software    string     `json:"software,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	ModifiedAt  *time.Time `json:"modified_at,omitempty"`
	HasGPS      bool       `json:"has_gps"`
	Flags       []Flag     `json:"flags"`
	ExtractedAt time.Time  `json:"extracted_at"`
}

// HasFlag reports whether the finding set contains the given flag.
func (f *Findings) HasFlag(flag Flag) bool {
	for _, existing := range f.Flags {
		if existing == flag {
			return true
		}
	}
	return false
}

func (f *Findings) addFlag(flag Flag) {
	if !f.HasFlag(flag) {
		f.Flags = append(f.Flags, flag)
	}
}

func (f *Findings) empty() bool {
	return f.DeviceModel == "" && f.Software == "" &&
		f.CreatedAt == nil && f.ModifiedAt == nil && !f.HasGPS
}

// Editing tools whose signature in the software tag marks the artifact as
// processed after capture.
var editorSignatures = []string{
	"photoshop",
	"gimp",
	"lightroom",
	"snapseed",
	"picsart",
	"canva",
	"affinity",
	"pixelmator",
}

func isEditorSignature(software string) bool {
	lower := strings.ToLower(software)
	for _, sig := range editorSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}

// applyPolicy derives inconsistency flags from the raw attributes.
func (f *Findings) applyPolicy() {
	if f.CreatedAt != nil && f.ModifiedAt != nil && f.ModifiedAt.Before(*f.CreatedAt) {
		f.addFlag(FlagTimeInversion)
	}
	if f.Software != "" && isEditorSignature(f.Software) {
		f.addFlag(FlagEditorSignature)
	}
	if f.empty() {
		f.addFlag(FlagMetadataStripped)
	}
	if f.Flags == nil {
		f.Flags = []Flag{}
	}
}
