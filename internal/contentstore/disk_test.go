package contentstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDigest(t *testing.T) {
	data := []byte("hello world")
	sum := sha256.Sum256(data)
	want := hex.EncodeToString(sum[:])

	if got := Digest(data); got != want {
		t.Errorf("Expected digest %s, got %s", want, got)
	}
}

func TestDiskStore(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	ctx := context.Background()

	t.Run("PutAndGet", func(t *testing.T) {
		data := []byte("some image bytes")
		digest, err := store.Put(ctx, data)
		if err != nil {
			t.Fatalf("Failed to put: %v", err)
		}
		if digest != Digest(data) {
			t.Errorf("Expected digest %s, got %s", Digest(data), digest)
		}

		got, err := store.Get(ctx, digest)
		if err != nil {
			t.Fatalf("Failed to get: %v", err)
		}
		if !bytes.Equal(got, data) {
			t.Errorf("Content mismatch after round trip")
		}
	})

	t.Run("PutIsIdempotent", func(t *testing.T) {
		data := []byte("same bytes twice")
		first, err := store.Put(ctx, data)
		if err != nil {
			t.Fatalf("Failed first put: %v", err)
		}
		second, err := store.Put(ctx, data)
		if err != nil {
			t.Fatalf("Failed second put: %v", err)
		}
		if first != second {
			t.Errorf("Expected identical digests, got %s and %s", first, second)
		}
	})

	t.Run("ShardedLayout", func(t *testing.T) {
		base := t.TempDir()
		sharded, err := NewDiskStore(base)
		if err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}
		digest, err := sharded.Put(ctx, []byte("shard me"))
		if err != nil {
			t.Fatalf("Failed to put: %v", err)
		}
		if _, err := os.Stat(filepath.Join(base, digest[:2], digest)); err != nil {
			t.Errorf("Object not at sharded path: %v", err)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		missing := Digest([]byte("never stored"))
		_, err := store.Get(ctx, missing)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("GetInvalidDigest", func(t *testing.T) {
		for _, bad := range []string{"", "short", "ZZ" + Digest([]byte("x"))[2:], "../../etc/passwd"} {
			if _, err := store.Get(ctx, bad); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get(%q): expected ErrNotFound, got %v", bad, err)
			}
		}
	})

	t.Run("Exists", func(t *testing.T) {
		data := []byte("existence check")
		digest, err := store.Put(ctx, data)
		if err != nil {
			t.Fatalf("Failed to put: %v", err)
		}

		ok, err := store.Exists(ctx, digest)
		if err != nil {
			t.Fatalf("Failed to check existence: %v", err)
		}
		if !ok {
			t.Error("Expected stored object to exist")
		}

		ok, err = store.Exists(ctx, Digest([]byte("absent")))
		if err != nil {
			t.Fatalf("Failed to check existence: %v", err)
		}
		if ok {
			t.Error("Expected missing object to not exist")
		}
	})
}
