package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/marmos91/resolvd/internal/logger"
)

// reloadDebounce lets bursts of write events settle before reloading.
const reloadDebounce = 250 * time.Millisecond

// Watch reloads the config file at path whenever it changes and passes every
// valid result to onChange. Invalid files are logged and skipped. Watch
// returns once the watcher is running; it stops when ctx is cancelled.
//
// The parent directory is watched rather than the file, so editors that save
// by renaming a temporary file are followed.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to watch %q: %w", filepath.Dir(abs), err)
	}

	reload := func() {
		cfg, err := Load(abs)
		if err != nil {
			logger.Warn("Ignoring invalid configuration change", logger.KeyPath, abs, logger.KeyError, err)
			return
		}
		logger.Info("Configuration reloaded", logger.KeyPath, abs)
		onChange(cfg)
	}

	go func() {
		defer w.Close()

		var debounce *time.Timer
		defer func() {
			if debounce != nil {
				debounce.Stop()
			}
		}()

		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(reloadDebounce, reload)

			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("Config watcher error", logger.KeyError, err)

			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// ApplyRuntime applies the settings that can change without a restart.
func ApplyRuntime(cfg *Config) {
	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)
}
