package database

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/verifyai/verifyai/internal/detector"
	"github.com/verifyai/verifyai/internal/models"
)

func TestResultRepo(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewResultRepo(db)
	ctx := context.Background()

	run := models.NewRun(testDigest, "v1")
	score := 0.65

	stored, err := repo.Insert(ctx, run.ID, testDigest, detector.Result{
		Detector: detector.ELAName,
		Status:   detector.StatusSucceeded,
		Score:    &score,
		Evidence: json.RawMessage(`{"anomalous_area": 0.1}`),
		Elapsed:  1500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Failed to insert result: %v", err)
	}
	if stored.ID == "" {
		t.Error("Expected ID to be assigned")
	}
	if stored.ElapsedMS != 1500 {
		t.Errorf("Expected elapsed 1500ms, got %d", stored.ElapsedMS)
	}

	if _, err := repo.Insert(ctx, run.ID, testDigest, detector.Result{
		Detector: detector.ModelName,
		Status:   detector.StatusFailed,
		Evidence: json.RawMessage(`{"failure": "timeout"}`),
	}); err != nil {
		t.Fatalf("Failed to insert failed result: %v", err)
	}

	t.Run("DuplicateDetectorRejected", func(t *testing.T) {
		_, err := repo.Insert(ctx, run.ID, testDigest, detector.Result{
			Detector: detector.ELAName,
			Status:   detector.StatusSucceeded,
			Score:    &score,
		})
		if err == nil {
			t.Error("Expected unique constraint to reject a second result for the same detector")
		}
	})

	t.Run("ListByRun", func(t *testing.T) {
		results, err := repo.ListByRun(ctx, run.ID)
		if err != nil {
			t.Fatalf("Failed to list results: %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("Expected 2 results, got %d", len(results))
		}
		// Ordered by detector name.
		if results[0].Detector != detector.ELAName || results[1].Detector != detector.ModelName {
			t.Errorf("Expected detector ordering [ela, model], got [%s, %s]", results[0].Detector, results[1].Detector)
		}
		if results[0].Score == nil || *results[0].Score != score {
			t.Errorf("Expected score %f, got %v", score, results[0].Score)
		}
		if results[1].Score != nil {
			t.Error("Failed result must round-trip without a score")
		}
	})

	t.Run("ListByDigest", func(t *testing.T) {
		results, err := repo.ListByDigest(ctx, testDigest)
		if err != nil {
			t.Fatalf("Failed to list results: %v", err)
		}
		if len(results) != 2 {
			t.Errorf("Expected 2 results, got %d", len(results))
		}
	})
}
