package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "denticheck-server/internal/platform/errors"
)

func TestFileWatcherDebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "classes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o600))

	var calls atomic.Int32
	fw, err := NewFileWatcher(path, func() { calls.Add(1) }, nil)
	require.NoError(t, err)
	fw.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fw.Run(ctx) }()

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("v2"), 0o600))
	}
	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.LessOrEqual(t, calls.Load(), int32(2))

	// Other files in the directory are ignored.
	before := calls.Load()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o600))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, before, calls.Load())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestNewFileWatcherValidation(t *testing.T) {
	_, err := NewFileWatcher("", func() {}, nil)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConfig))

	_, err = NewFileWatcher(filepath.Join(t.TempDir(), "x.yaml"), nil, nil)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConfig))

	_, err = NewFileWatcher(filepath.Join(t.TempDir(), "missing", "x.yaml"), func() {}, nil)
	assert.True(t, apperrors.IsKind(err, apperrors.KindPlatform))
}
