package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ErrNotFound is returned by Open when the key does not exist
var ErrNotFound = errors.New("file not found")

// Store holds raw uploads and reassembled text files under flat keys
type Store interface {
	Save(ctx context.Context, key string, r io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes key. A missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Sweep removes entries last modified before now-olderThan and returns how many
	Sweep(ctx context.Context, olderThan time.Duration) (int, error)
}

// Opener is the read side of a Store
type Opener interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// ReadText reads the whole object as a string
func ReadText(ctx context.Context, s Opener, key string) (string, error) {
	rc, err := s.Open(ctx, key)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	b, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return string(b), nil
}

// ValidateKey rejects empty keys and keys that could escape the store root
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("empty file key")
	}
	if strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return fmt.Errorf("invalid file key %q", key)
	}
	return nil
}
