// Package blob stores uploaded document bytes outside the catalog.
// The catalog keeps only an opaque handle; workers fetch the payload
// through this interface when a task is claimed.
package blob

import (
	"context"
	"errors"
	"fmt"

	"document-processing-platform/internal/config"
)

// ErrNotFound is returned when a handle does not resolve to a stored object.
var ErrNotFound = errors.New("blob not found")

// Store is the persistence contract for raw document payloads.
// Handles are opaque to callers: they are minted by Put and must be
// passed back verbatim to Get and Delete.
type Store interface {
	// Put writes the payload and returns the handle to retrieve it later.
	Put(ctx context.Context, filename string, data []byte) (handle string, err error)

	// Get reads the payload for a handle. Returns ErrNotFound when the
	// object no longer exists.
	Get(ctx context.Context, handle string) ([]byte, error)

	// Delete removes the object. Deleting a missing handle is not an error.
	Delete(ctx context.Context, handle string) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
}

// NewStore builds the backend selected by BLOB_BACKEND.
func NewStore(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.BlobBackend {
	case "s3":
		return NewS3Store(ctx, cfg)
	case "fs":
		return NewFSStore(cfg.FileStorageDir)
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
	}
}
