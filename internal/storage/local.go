package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore writes blobs under a directory on disk. Intended for
// development and single-node setups where the HTTP server (or anything
// else) serves the directory directly.
type LocalStore struct {
	dir     string
	baseURL string
	logger  *slog.Logger
}

// NewLocalStore creates the directory if needed. baseURL is prepended to
// the key to form the returned URL; when empty, a file:// URL is returned.
func NewLocalStore(dir, baseURL string, logger *slog.Logger) (*LocalStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage: local dir not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalStore{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With("component", "storage.local"),
	}, nil
}

func (s *LocalStore) Upload(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key = sanitizeKey(key)
	if key == "" {
		return "", fmt.Errorf("storage: empty key")
	}
	path := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("storage: create key dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write %s: %w", key, err)
	}
	s.logger.Debug("stored blob", "key", key, "bytes", len(data))
	if s.baseURL != "" {
		return s.baseURL + "/" + key, nil
	}
	return "file://" + path, nil
}

// sanitizeKey strips path-traversal components so a key can never escape
// the store directory.
func sanitizeKey(key string) string {
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.ToSlash(filepath.Clean("/" + key))
	return strings.TrimLeft(cleaned, "/")
}
