// Package storage defines the blob persistence contract for extraction
// artifacts.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned when a stored object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// BlobStore persists artifact payloads and serves them back for previews.
// Implementations must be safe for concurrent use.
type BlobStore interface {
	// PutObject stores the content under path and returns a backend URI.
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
	// GetObject returns a reader for the content stored under path. The
	// caller closes the reader.
	GetObject(ctx context.Context, path string) (io.ReadCloser, error)
}
