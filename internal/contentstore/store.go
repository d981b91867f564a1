package contentstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var (
	// ErrNotFound means no object with the requested digest exists.
	ErrNotFound = errors.New("object not found")
	// ErrUnavailable means the backing store could not be reached or
	// written. Callers should treat it as retryable.
	ErrUnavailable = errors.New("storage unavailable")
)

// Store is content-addressed storage for raw artifacts and derived objects
// (sampled frames, thumbnails). Objects are keyed by the SHA-256 hex digest
// of their bytes, which makes Put naturally idempotent.
type Store interface {
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, digest string) ([]byte, error)
	Exists(ctx context.Context, digest string) (bool, error)
}

// Digest computes the content address for a byte slice.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
