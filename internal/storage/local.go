package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LocalStore keeps temporary uploads on local disk. The default backend
// for development and single-node deployments.
type LocalStore struct {
	dir string
}

// NewLocalStore creates a disk-backed file store rooted at dir.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload dir: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

// Store writes the upload under a fresh UUID filename.
func (s *LocalStore) Store(ctx context.Context, name string, r io.Reader) (string, error) {
	ext := filepath.Ext(name)
	if ext == "" {
		ext = ".csv"
	}
	key := uuid.New().String() + ext

	f, err := os.Create(filepath.Join(s.dir, key))
	if err != nil {
		return "", fmt.Errorf("creating upload file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("writing upload file: %w", err)
	}
	return key, nil
}

// Open returns a reader for a stored upload.
func (s *LocalStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(key))
	if err != nil {
		return nil, fmt.Errorf("opening upload file: %w", err)
	}
	return f, nil
}

// Delete removes a stored upload. A missing file is fine; the import
// session may have been retried.
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing upload file: %w", err)
	}
	return nil
}

func (s *LocalStore) path(key string) string {
	// Keys are UUID-derived; reject anything trying to walk out of dir.
	key = filepath.Base(strings.TrimSpace(key))
	return filepath.Join(s.dir, key)
}
