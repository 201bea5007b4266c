package config

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	rewatchAttempts = 5
	rewatchDelay    = 20 * time.Millisecond
)

// Watch reloads the config file on change and hands each valid snapshot to
// onChange; a snapshot that fails to load or validate is logged and dropped,
// keeping the previous one active. Runs until the context ends.
// Params: lifetime context, config path, logger, and change callback.
// Returns: watcher setup error or nil after cancellation.
func Watch(ctx context.Context, path string, logger *slog.Logger, onChange func(Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}
	logger.Info("watching config for changes", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors often save atomically: the watched inode surfaces as
			// rename or remove and a fresh file takes its place, so the
			// watch must be re-established before reading.
			if event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				if err := rewatch(ctx, watcher, path); err != nil {
					logger.Error("config re-watch failed", "path", path, "error", err.Error())
					continue
				}
			} else if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := Load(path)
			if err != nil {
				logger.Error("config reload failed, keeping previous", "path", path, "error", err.Error())
				continue
			}
			logger.Info("config reloaded", "path", path)
			onChange(cfg)

			_ = watcher.Add(path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("config watcher error", "error", err.Error())
		}
	}
}

// rewatch re-adds the path after the watched inode went away, waiting
// briefly for the replacement file to land.
// Params: context, watcher, and config path.
// Returns: last add error after exhausted attempts.
func rewatch(ctx context.Context, watcher *fsnotify.Watcher, path string) error {
	var err error
	for attempt := 0; attempt < rewatchAttempts; attempt++ {
		if err = watcher.Add(path); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(rewatchDelay):
		}
	}
	return err
}
