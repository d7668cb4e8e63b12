package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	apperrors "denticheck-server/internal/platform/errors"
	"denticheck-server/internal/platform/logging"
)

const defaultDebounce = 100 * time.Millisecond

// FileWatcher invokes a callback when a single file is written, created or
// replaced. The parent directory is watched so editors that save through a
// rename are seen too. Bursts of events are debounced into one call.
type FileWatcher struct {
	path     string
	dir      string
	name     string
	onChange func()
	debounce time.Duration
	logger   *logging.Logger

	watcher *fsnotify.Watcher
	mu      sync.Mutex
	timer   *time.Timer
}

func NewFileWatcher(path string, onChange func(), logger *logging.Logger) (*FileWatcher, error) {
	const op = "config.watch"
	if path == "" {
		return nil, apperrors.New(apperrors.KindConfig, op, "watch path is empty")
	}
	if onChange == nil {
		return nil, apperrors.New(apperrors.KindConfig, op, "change callback is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindConfig, op, "resolve watch path", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindPlatform, op, "create fsnotify watcher", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, apperrors.Wrap(apperrors.KindPlatform, op, "watch directory", err)
	}
	return &FileWatcher{
		path:     abs,
		dir:      filepath.Dir(abs),
		name:     filepath.Base(abs),
		onChange: onChange,
		debounce: defaultDebounce,
		logger:   logger,
		watcher:  w,
	}, nil
}

// Path is the absolute path being watched.
func (fw *FileWatcher) Path() string { return fw.path }

// Run delivers change notifications until ctx is cancelled, then closes
// the underlying watcher.
func (fw *FileWatcher) Run(ctx context.Context) error {
	defer func() {
		fw.mu.Lock()
		if fw.timer != nil {
			fw.timer.Stop()
		}
		fw.mu.Unlock()
		_ = fw.watcher.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != fw.name {
				continue
			}
			switch {
			case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
				fw.schedule(ctx)
			case event.Has(fsnotify.Rename), event.Has(fsnotify.Remove):
				// Atomic saves rename a new file over the old one.
				if _, err := os.Stat(fw.path); err == nil {
					fw.schedule(ctx)
				} else {
					fw.logger.WarnTag("CONFIG", "watched file %s disappeared; keeping current settings", fw.path)
				}
			}
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return nil
			}
			fw.logger.WarnTag("CONFIG", "file watcher error on %s: %v", fw.path, err)
		}
	}
}

func (fw *FileWatcher) schedule(ctx context.Context) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.timer = time.AfterFunc(fw.debounce, func() {
		if ctx.Err() != nil {
			return
		}
		fw.onChange()
	})
}
