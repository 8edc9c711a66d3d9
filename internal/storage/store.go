// Package storage provides the object store the form-fill pipeline persists
// source documents, schemas, and filled artifacts into.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const dirPerm = 0o750

// Store is the narrow object-store contract the pipeline depends on.
type Store interface {
	// Put stores data under key and returns a public URL for it.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Get retrieves the object stored under key.
	Get(ctx context.Context, key string) ([]byte, error)
}

// ErrNotFound is returned by Get for keys that have never been stored.
var ErrNotFound = fmt.Errorf("object not found")

// DiskStore keeps objects as files under a root directory and serves URLs
// relative to a public base URL.
type DiskStore struct {
	root    string
	baseURL string
	logger  *slog.Logger
}

// NewDiskStore creates a disk-backed store rooted at root.
func NewDiskStore(root, baseURL string, logger *slog.Logger) (*DiskStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("create store root %s: %w", root, err)
	}
	return &DiskStore{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}, nil
}

func (s *DiskStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(s.root, clean), nil
}

// Put writes data to disk under key, creating parent directories as needed.
func (s *DiskStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	path, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return "", fmt.Errorf("create object dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", fmt.Errorf("write object %s: %w", key, err)
	}
	s.logger.Debug("store.put", "key", key, "bytes", len(data), "content_type", contentType)
	return s.baseURL + "/" + key, nil
}

// Get reads the object stored under key.
func (s *DiskStore) Get(ctx context.Context, key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}
