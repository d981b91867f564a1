package database

import (
	"context"
	"errors"
	"testing"

	"github.com/verifyai/verifyai/internal/media"
	"github.com/verifyai/verifyai/internal/models"
)

const testDigest = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

func TestArtifactRepo(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewArtifactRepo(db)
	ctx := context.Background()

	artifact := models.NewArtifact(testDigest, media.KindImage, "image/jpeg", "image/jpeg", 2048)
	if err := repo.Insert(ctx, artifact); err != nil {
		t.Fatalf("Failed to insert artifact: %v", err)
	}

	t.Run("Get", func(t *testing.T) {
		got, err := repo.Get(ctx, testDigest)
		if err != nil {
			t.Fatalf("Failed to get artifact: %v", err)
		}
		if got.Digest != testDigest {
			t.Errorf("Expected digest %s, got %s", testDigest, got.Digest)
		}
		if got.Kind != media.KindImage {
			t.Errorf("Expected kind image, got %s", got.Kind)
		}
		if got.SizeBytes != 2048 {
			t.Errorf("Expected size 2048, got %d", got.SizeBytes)
		}
	})

	t.Run("ReinsertIsNoOp", func(t *testing.T) {
		duplicate := models.NewArtifact(testDigest, media.KindImage, "application/octet-stream", "image/jpeg", 2048)
		if err := repo.Insert(ctx, duplicate); err != nil {
			t.Fatalf("Expected re-insert of same digest to succeed: %v", err)
		}

		got, err := repo.Get(ctx, testDigest)
		if err != nil {
			t.Fatalf("Failed to get artifact: %v", err)
		}
		// The original record wins; content-addressed rows are immutable.
		if got.DeclaredMIME != "image/jpeg" {
			t.Errorf("Expected original declared MIME to survive, got %s", got.DeclaredMIME)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		missing := "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
		_, err := repo.Get(ctx, missing)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Exists", func(t *testing.T) {
		ok, err := repo.Exists(ctx, testDigest)
		if err != nil {
			t.Fatalf("Failed to check existence: %v", err)
		}
		if !ok {
			t.Error("Expected artifact to exist")
		}

		ok, err = repo.Exists(ctx, "cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc")
		if err != nil {
			t.Fatalf("Failed to check existence: %v", err)
		}
		if ok {
			t.Error("Expected unknown digest to not exist")
		}
	})
}
