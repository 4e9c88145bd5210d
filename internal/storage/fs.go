package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FSStore is a filesystem-backed ObjectStore. Buckets map to directories
// under the root; keys may contain slashes.
type FSStore struct {
	root string
}

// NewFSStore creates an object store rooted at the given directory.
func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &FSStore{root: root}, nil
}

// Put writes an object.
func (s *FSStore) Put(_ context.Context, bucket, key string, body []byte) error {
	path := s.objectPath(bucket, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("failed to write object %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Get reads an object fully into memory.
func (s *FSStore) Get(_ context.Context, bucket, key string) ([]byte, error) {
	body, err := os.ReadFile(s.objectPath(bucket, key))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%s/%s: %w", bucket, key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s/%s: %w", bucket, key, err)
	}
	return body, nil
}

// Download writes an object to a local file path.
func (s *FSStore) Download(ctx context.Context, bucket, key, path string) error {
	body, err := s.Get(ctx, bucket, key)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Delete removes an object. Deleting an absent object is a no-op.
func (s *FSStore) Delete(_ context.Context, bucket, key string) error {
	err := os.Remove(s.objectPath(bucket, key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete object %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Exists reports whether an object is present.
func (s *FSStore) Exists(_ context.Context, bucket, key string) (bool, error) {
	_, err := os.Stat(s.objectPath(bucket, key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat object %s/%s: %w", bucket, key, err)
	}
	return true, nil
}

func (s *FSStore) objectPath(bucket, key string) string {
	return filepath.Join(s.root, bucket, filepath.FromSlash(key))
}
