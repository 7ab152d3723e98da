package filestore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocal(t *testing.T) *LocalFS {
	t.Helper()
	fs, err := NewLocalFS(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return fs
}

func TestLocalFS_SaveOpen(t *testing.T) {
	ctx := context.Background()
	store := newLocal(t)

	require.NoError(t, store.Save(ctx, "combined-abc.txt", strings.NewReader("hello deck")))

	text, err := ReadText(ctx, store, "combined-abc.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello deck", text)
}

func TestLocalFS_OpenMissing(t *testing.T) {
	_, err := newLocal(t).Open(context.Background(), "nope.txt")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLocalFS_DeleteMissingIsNotAnError(t *testing.T) {
	assert.NoError(t, newLocal(t).Delete(context.Background(), "nope.txt"))
}

func TestLocalFS_RejectsTraversal(t *testing.T) {
	store := newLocal(t)
	for _, key := range []string{"", "../etc/passwd", "a/b.txt", ".."} {
		assert.Error(t, store.Save(context.Background(), key, strings.NewReader("x")), key)
	}
}

func TestLocalFS_Sweep(t *testing.T) {
	ctx := context.Background()
	store := newLocal(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Save(ctx, "old.txt", strings.NewReader("old")))
	require.NoError(t, store.Save(ctx, "fresh.txt", strings.NewReader("fresh")))

	old := now.Add(-25 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(store.Root(), "old.txt"), old, old))
	fresh := now.Add(-time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(store.Root(), "fresh.txt"), fresh, fresh))

	removed, err := store.Sweep(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.Open(ctx, "old.txt")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = ReadText(ctx, store, "fresh.txt")
	assert.NoError(t, err)
}
