package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// LocalFS stores files in a single directory
type LocalFS struct {
	root   string
	logger *slog.Logger
	now    func() time.Time
}

// DefaultLocalRoot is used when no directory is configured
func DefaultLocalRoot() string {
	return filepath.Join(os.TempDir(), "insight-engine-uploads")
}

// NewLocalFS creates the root directory when missing
func NewLocalFS(root string, logger *slog.Logger) (*LocalFS, error) {
	if root == "" {
		root = DefaultLocalRoot()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &LocalFS{root: root, logger: logger, now: time.Now}, nil
}

// Root returns the backing directory
func (l *LocalFS) Root() string {
	return l.root
}

func (l *LocalFS) Save(ctx context.Context, key string, r io.Reader) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(l.root, ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(l.root, key)); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

func (l *LocalFS) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(l.root, key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	return f, nil
}

func (l *LocalFS) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(l.root, key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (l *LocalFS) Sweep(ctx context.Context, olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		return 0, fmt.Errorf("list upload directory: %w", err)
	}

	cutoff := l.now().Add(-olderThan)
	removed := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(l.root, entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn("Failed to remove stale upload",
				slog.String("file", entry.Name()),
				slog.Any("error", err),
			)
			continue
		}
		removed++
	}

	if removed > 0 {
		l.logger.Info("Swept stale uploads", slog.Int("removed", removed))
	}
	return removed, nil
}
