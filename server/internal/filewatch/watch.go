// Package filewatch calls back when a single file changes on disk.
package filewatch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses the burst of events a single save produces.
const DefaultDebounce = 100 * time.Millisecond

// Watch monitors path and calls onChange once per burst of writes. It runs
// until ctx is cancelled.
//
// The parent directory is watched rather than the file itself, so editors
// and writers that save by renaming a temp file over path are still seen,
// and path does not have to exist yet.
func Watch(ctx context.Context, path string, debounce time.Duration, onChange func()) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	target, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("filewatch: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("filewatch: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("filewatch: watch %q: %w", filepath.Dir(target), err)
	}

	slog.Info("filewatch: watching for changes", "path", target)

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			timer.Reset(debounce)

		case <-timer.C:
			onChange()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("filewatch: watcher error", "path", target, "err", err)
		}
	}
}
