package filestore

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/Pixelplanet/FilamentDB-sub000/internal/validation"
)

// Watcher reports changes made to the record directories by other processes.
// It only works on the real OS filesystem.
type Watcher struct {
	watcher *fsnotify.Watcher
	logger  *slog.Logger
}

// NewWatcher starts watching records/ and recycle/ under root
func NewWatcher(root string, logger *slog.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	for _, dir := range []string{RecordsDir, RecycleDir} {
		path := filepath.Join(root, dir)
		if err := w.Add(path); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("failed to watch directory %s: %w", path, err)
		}
	}

	return &Watcher{watcher: w, logger: logger}, nil
}

// Run calls onChange for every created, written, removed or renamed record
// file until ctx is cancelled. The watcher is closed on return
func (w *Watcher) Run(ctx context.Context, onChange func(path string)) error {
	defer func() {
		_ = w.watcher.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !isRecordEvent(event) {
				continue
			}
			w.logger.Debug("record file changed", "path", event.Name, "op", event.Op.String())
			onChange(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

func isRecordEvent(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	name := filepath.Base(event.Name)
	return !strings.HasPrefix(name, tempPrefix) && strings.HasSuffix(name, validation.RecordFileExt)
}
