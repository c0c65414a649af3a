package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// FilesystemStore keeps report files under a local root directory and serves
// them back through the download endpoint. Keys are slash-separated relative
// paths; anything escaping the root is rejected.
type FilesystemStore struct {
	root    string
	baseURL string
	logger  *zap.Logger
}

// NewFilesystemStore creates a new filesystem blob store rooted at root
func NewFilesystemStore(root, baseURL string, logger *zap.Logger) (*FilesystemStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &FilesystemStore{root: root, baseURL: baseURL, logger: logger}, nil
}

func (s *FilesystemStore) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(s.root, clean), nil
}

// Upload writes content under key and returns its public URL.
func (s *FilesystemStore) Upload(ctx context.Context, key string, content []byte) (string, error) {
	path, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}
	return fmt.Sprintf("%s/%s", s.baseURL, key), nil
}

// DownloadStream opens the stored file for streaming.
func (s *FilesystemStore) DownloadStream(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, os.ErrNotExist
		}
		return nil, fmt.Errorf("failed to open report file: %w", err)
	}
	return f, nil
}

// CleanupOlderThan removes report files older than the retention window and
// returns how many were deleted. Empty directories are left in place.
func (s *FilesystemStore) CleanupOlderThan(retention time.Duration) (int, error) {
	cutoff := time.Now().Add(-retention)
	removed := 0
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil {
				s.logger.Warn("report cleanup failed",
					zap.String("path", path),
					zap.Error(err))
				return nil
			}
			removed++
		}
		return nil
	})
	return removed, err
}
