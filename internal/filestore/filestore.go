package filestore

import (
	"io"
)

// FileStore stores and retrieves uploaded file content addressed by its
// SHA-256 hash.
type FileStore interface {
	// Save stores the content read from r and returns its hash.
	// It is idempotent: saving the same content twice is a no-op.
	Save(r io.Reader) (hash string, err error)

	// Get retrieves the file content for the given hash.
	Get(hash string) (io.ReadCloser, error)
}
