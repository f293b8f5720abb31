package timeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of events editors emit on save.
const reloadDebounce = 150 * time.Millisecond

// Watch reloads the project state file at path whenever it changes and
// passes the decoded state to apply. apply is called from the watcher
// goroutine; callers hand it to their control goroutine. Files that fail
// to decode are logged and skipped. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, apply func(*State), logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors often replace the file by rename.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	target := filepath.Clean(path)

	var pending <-chan time.Time
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
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(reloadDebounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("project watcher error", "err", err)
		case <-pending:
			pending = nil
			st, err := LoadStateFile(path)
			if err != nil {
				logger.Warn("project state reload failed", "path", path, "err", err)
				continue
			}
			logger.Info("project state reloaded", "path", path)
			apply(st)
		}
	}
}
