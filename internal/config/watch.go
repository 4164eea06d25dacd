package config

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadSettle coalesces the burst of events a single save produces
// (truncate, write, chmod, rename) into one reload.
const reloadSettle = 50 * time.Millisecond

// Watch reloads path after it changes and hands the new Config to apply.
// It blocks until ctx is done.
//
// A file that fails to load or validate is skipped and the running config
// stays in effect. A reload equal to the last applied config is not passed
// on. When apply returns an error the previous config is kept as the
// baseline so the next save is compared against what is actually running.
func Watch(ctx context.Context, path string, apply func(*Config) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watch %s: %w", path, err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("config: watch %s: %w", path, err)
	}

	current, err := Load(path)
	if err != nil {
		slog.Warn("config: initial load for watch failed", "path", path, "err", err)
	}
	slog.Info("config: watching for changes", "path", path)

	var settle <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			settle = time.After(reloadSettle)

		case <-settle:
			settle = nil
			// An atomic save replaces the inode, dropping the old watch.
			_ = watcher.Add(path)

			next, err := Load(path)
			if err != nil {
				slog.Error("config: reload rejected, keeping running config", "path", path, "err", err)
				continue
			}
			if reflect.DeepEqual(current, next) {
				slog.Debug("config: unchanged after save", "path", path)
				continue
			}
			if err := apply(next); err != nil {
				slog.Error("config: apply failed", "path", path, "err", err)
				continue
			}
			current = next
			slog.Info("config: reloaded",
				"path", path,
				"cache_size", next.Engine.CacheSize,
				"precision", next.Engine.Precision,
			)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
