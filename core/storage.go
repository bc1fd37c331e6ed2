package core

import (
	"context"
	"errors"
	"io"
)

var ErrFileNotFound = errors.New("file not found")

// FileStorage is any service that can store and retrieve file blobs by key.
// Keys are opaque, flat identifiers; implementations must reject keys
// containing path separators.
type FileStorage interface {
	// Save stores the content of r under key and returns the number of bytes written.
	Save(ctx context.Context, key string, r io.Reader) (int64, error)
	// Open returns the content stored under key. The caller must close it.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Remove deletes the content stored under key.
	Remove(ctx context.Context, key string) error
}
