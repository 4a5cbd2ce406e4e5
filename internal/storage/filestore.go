package storage

import (
	"context"
	"io"

	"github.com/leadforge/outreach/internal/config"
)

// FileStore holds temporary uploads between the moment a file arrives and
// the moment the import pipeline releases it. The pipeline only signals
// deletion; it never touches the backing store directly.
type FileStore interface {
	// Store writes the upload and returns the key to retrieve or delete it.
	Store(ctx context.Context, name string, r io.Reader) (string, error)
	// Open returns a reader for a stored upload.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete releases a stored upload. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// NewFileStore creates the configured file store backend.
func NewFileStore(ctx context.Context, cfg config.StorageConfig) (FileStore, error) {
	if cfg.Backend == "s3" {
		return NewS3Store(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Prefix)
	}
	return NewLocalStore(cfg.LocalDir)
}
