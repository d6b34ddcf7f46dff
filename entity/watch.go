package entity

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchAliasFile reloads the alias table whenever the file changes on disk,
// so operators can add newly launched brands without restarting the
// pipeline. It blocks until ctx is cancelled; run it in a goroutine. A
// reload failure keeps the previous table and is logged, never fatal.
func WatchAliasFile(ctx context.Context, path string, table *AliasTable, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: editors replace files via rename, which drops a
	// watch placed on the file itself.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

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
			if err := table.Reload(path); err != nil {
				logger.Warn("alias reload failed, keeping previous table",
					"path", path, "error", err)
				continue
			}
			logger.Info("brand alias table reloaded", "path", path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("alias watcher error", "error", err)
		}
	}
}
