package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"document-processing-platform/internal/logger"
)

// FSStore keeps payloads on the local filesystem under a root directory.
// Handles are paths relative to the root, mirroring the S3 key layout so
// the two backends are interchangeable.
type FSStore struct {
	root string
}

func NewFSStore(root string) (*FSStore, error) {
	if root == "" {
		return nil, fmt.Errorf("file storage dir is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir %s: %w", root, err)
	}
	return &FSStore{root: root}, nil
}

func (f *FSStore) Put(ctx context.Context, filename string, data []byte) (string, error) {
	handle := fmt.Sprintf("uploads/%s/%s", uuid.New().String(), filepath.Base(filename))

	path := filepath.Join(f.root, filepath.FromSlash(handle))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write blob %s: %w", handle, err)
	}

	logger.Debug("Stored blob on filesystem", "path", path, "size", len(data))
	return handle, nil
}

func (f *FSStore) Get(ctx context.Context, handle string) ([]byte, error) {
	path, err := f.resolve(handle)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read blob %s: %w", handle, err)
	}
	return data, nil
}

func (f *FSStore) Delete(ctx context.Context, handle string) error {
	path, err := f.resolve(handle)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete blob %s: %w", handle, err)
	}
	// Best-effort cleanup of the per-upload directory.
	_ = os.Remove(filepath.Dir(path))
	return nil
}

func (f *FSStore) Ping(ctx context.Context) error {
	info, err := os.Stat(f.root)
	if err != nil {
		return fmt.Errorf("stat storage dir %s: %w", f.root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage path %s is not a directory", f.root)
	}
	return nil
}

// resolve maps a handle to an absolute path, rejecting handles that
// would escape the storage root.
func (f *FSStore) resolve(handle string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(handle))
	if cleaned == "." || strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("invalid blob handle %q", handle)
	}
	return filepath.Join(f.root, cleaned), nil
}
