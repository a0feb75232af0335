package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch calls fn with the reloaded settings whenever the file at path is
// written or replaced. Files that fail to parse or validate are logged and
// skipped. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, fn func(Settings)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so atomic renames are seen.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("config: watch %s: %w", filepath.Dir(path), err)
	}
	path = filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			st, err := loadFile(path)
			if err != nil {
				slog.Warn("config: failed to reload settings", "path", path, "err", err)
				continue
			}
			if err := st.Validate(); err != nil {
				slog.Warn("config: ignoring invalid settings", "path", path, "err", err)
				continue
			}
			slog.Debug("config: settings reloaded", "path", path)
			fn(*st)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config: watcher error", "err", err)
		}
	}
}
