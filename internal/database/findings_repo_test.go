package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/verifyai/verifyai/internal/media"
	"github.com/verifyai/verifyai/internal/metadata"
	"github.com/verifyai/verifyai/internal/models"
)

func TestFindingsRepo(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	artifacts := NewArtifactRepo(db)
	repo := NewFindingsRepo(db)
	ctx := context.Background()

	artifact := models.NewArtifact(testDigest, media.KindImage, "image/jpeg", "image/jpeg", 1024)
	if err := artifacts.Insert(ctx, artifact); err != nil {
		t.Fatalf("Failed to insert artifact: %v", err)
	}

	created := time.Date(2023, 5, 10, 10, 0, 0, 0, time.UTC)
	findings := &metadata.Findings{
		DeviceModel: "Canon EOS R5",
		Software:    "Adobe Photoshop 25.1",
		CreatedAt:   &created,
		HasGPS:      true,
		Flags:       []metadata.Flag{metadata.FlagEditorSignature},
		ExtractedAt: time.Now().UTC(),
	}

	if err := repo.Upsert(ctx, testDigest, findings); err != nil {
		t.Fatalf("Failed to upsert findings: %v", err)
	}

	got, err := repo.Get(ctx, testDigest)
	if err != nil {
		t.Fatalf("Failed to get findings: %v", err)
	}
	if got.DeviceModel != findings.DeviceModel {
		t.Errorf("Expected device model %q, got %q", findings.DeviceModel, got.DeviceModel)
	}
	if got.CreatedAt == nil || !got.CreatedAt.Equal(created) {
		t.Errorf("Expected created %v, got %v", created, got.CreatedAt)
	}
	if !got.HasGPS {
		t.Error("Expected GPS flag to round-trip")
	}
	if !got.HasFlag(metadata.FlagEditorSignature) {
		t.Errorf("Expected %s flag, got %v", metadata.FlagEditorSignature, got.Flags)
	}

	t.Run("UpsertReplaces", func(t *testing.T) {
		replacement := &metadata.Findings{
			Flags:       []metadata.Flag{metadata.FlagMetadataStripped},
			ExtractedAt: time.Now().UTC(),
		}
		if err := repo.Upsert(ctx, testDigest, replacement); err != nil {
			t.Fatalf("Failed to upsert replacement: %v", err)
		}

		got, err := repo.Get(ctx, testDigest)
		if err != nil {
			t.Fatalf("Failed to get findings: %v", err)
		}
		if got.DeviceModel != "" {
			t.Errorf("Expected device model cleared, got %q", got.DeviceModel)
		}
		if !got.HasFlag(metadata.FlagMetadataStripped) {
			t.Errorf("Expected %s flag, got %v", metadata.FlagMetadataStripped, got.Flags)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := repo.Get(ctx, "dddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddd")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}
