package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned for a key that does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore holds raw uploaded files.
type ObjectStore interface {
	// Upload stores size bytes from r under key and returns a locator for the object.
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	Download(ctx context.Context, key string) ([]byte, error)
	DownloadToFile(ctx context.Context, key, path string) error
	Delete(ctx context.Context, key string) error
}
