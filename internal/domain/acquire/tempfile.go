package acquire

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	apperrors "denticheck-server/internal/platform/errors"
)

// TempManager owns the directory where per-request image artifacts live.
type TempManager struct {
	dir    string
	prefix string
	live   atomic.Int64
}

// NewTempManager creates dir when missing. An empty dir means os.TempDir().
func NewTempManager(dir, prefix string) (*TempManager, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, apperrors.Wrap(apperrors.KindPlatform, "acquire.temp", "create temp dir", err)
	}
	return &TempManager{dir: dir, prefix: prefix}, nil
}

// TempImage is a handle on one request's image bytes on local disk.
type TempImage struct {
	Path   string
	Size   int64
	Format string
	Data   []byte

	once     sync.Once
	released atomic.Bool
	err      error
	owner    *TempManager
}

// Acquire writes data to a fresh file named from a random token. Nothing is
// created when data is empty.
func (m *TempManager) Acquire(data []byte, format string) (*TempImage, error) {
	const op = "acquire.temp"
	if len(data) == 0 {
		return nil, apperrors.New(apperrors.KindInvalidInput, op, "empty image payload")
	}

	name := m.prefix + uuid.NewString() + extensionFor(format)
	path := filepath.Join(m.dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindPlatform, op, "create temp file", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return nil, apperrors.Wrap(apperrors.KindPlatform, op, "write temp file", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, apperrors.Wrap(apperrors.KindPlatform, op, "close temp file", err)
	}

	m.live.Add(1)
	return &TempImage{
		Path:   path,
		Size:   int64(len(data)),
		Format: strings.TrimPrefix(extensionFor(format), "."),
		Data:   data,
		owner:  m,
	}, nil
}

// Live reports the number of acquired handles not yet released.
func (m *TempManager) Live() int64 {
	return m.live.Load()
}

// Dir is the directory artifacts are written to.
func (m *TempManager) Dir() string {
	return m.dir
}

// Release deletes the artifact. Calls after the first return the first
// result; a file that is already gone is not an error.
func (t *TempImage) Release() error {
	if t == nil {
		return nil
	}
	t.once.Do(func() {
		t.released.Store(true)
		if t.owner != nil {
			t.owner.live.Add(-1)
		}
		if err := os.Remove(t.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			t.err = fmt.Errorf("remove %s: %w", filepath.Base(t.Path), err)
		}
	})
	return t.err
}

func (t *TempImage) Released() bool {
	return t != nil && t.released.Load()
}

// Scoped acquires a handle, runs fn and releases the handle on every exit
// path, including panics and cancellation. A release failure is only
// reported when fn itself succeeded.
func Scoped(ctx context.Context, acquire func(context.Context) (*TempImage, error), fn func(context.Context, *TempImage) error) (err error) {
	handle, err := acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if relErr := handle.Release(); relErr != nil && err == nil {
			err = apperrors.Wrap(apperrors.KindPlatform, "acquire.release", "release temp image", relErr)
		}
	}()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, handle)
}

var knownExtensions = map[string]string{
	"jpeg": ".jpg",
	"jpg":  ".jpg",
	"png":  ".png",
	"webp": ".webp",
	"gif":  ".gif",
	"bmp":  ".bmp",
}

// extensionFor maps a format or filename to a safe extension; anything
// unrecognised becomes .jpg.
func extensionFor(formatOrName string) string {
	f := strings.ToLower(strings.TrimSpace(formatOrName))
	if ext := filepath.Ext(f); ext != "" {
		f = strings.TrimPrefix(ext, ".")
	}
	if ext, ok := knownExtensions[f]; ok {
		return ext
	}
	return ".jpg"
}
