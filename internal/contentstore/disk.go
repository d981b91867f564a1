package contentstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// DiskStore keeps objects on the local filesystem under
// <base>/<digest[:2]>/<digest>. Writes go through a temp file plus rename so
// concurrent writers of the same bytes cannot leave a torn object behind.
type DiskStore struct {
	basePath string
}

func NewDiskStore(basePath string) (*DiskStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &DiskStore{basePath: basePath}, nil
}

func (ds *DiskStore) Put(ctx context.Context, data []byte) (string, error) {
	digest := Digest(data)

	objPath := ds.objectPath(digest)
	if _, err := os.Stat(objPath); err == nil {
		return digest, nil
	}

	dir := filepath.Dir(objPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	tmp, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := os.Rename(tmpName, objPath); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return digest, nil
}

func (ds *DiskStore) Get(ctx context.Context, digest string) ([]byte, error) {
	if err := validateDigest(digest); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(ds.objectPath(digest))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return data, nil
}

func (ds *DiskStore) Exists(ctx context.Context, digest string) (bool, error) {
	if err := validateDigest(digest); err != nil {
		return false, err
	}

	_, err := os.Stat(ds.objectPath(digest))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return true, nil
}

func (ds *DiskStore) objectPath(digest string) string {
	return filepath.Join(ds.basePath, digest[:2], digest)
}

func validateDigest(digest string) error {
	if len(digest) != 64 {
		return ErrNotFound
	}
	for _, c := range digest {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return ErrNotFound
		}
	}
	return nil
}
