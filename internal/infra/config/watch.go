package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"mcpgw/internal/infra/telemetry"
)

const reloadDebounce = 300 * time.Millisecond

// Watch reloads the config file on change and hands each valid result to
// onReload. Invalid edits are logged and skipped; the previous config stays
// in effect. Blocks until ctx is done.
func Watch(ctx context.Context, path string, logger *zap.Logger, onReload func(Config)) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("config")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: editors replace files rather than write in place.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-watcher.Errors:
			if err != nil {
				logger.Warn("config watcher error", zap.Error(err))
			}
		case event := <-watcher.Events:
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(reloadDebounce)
		case <-timerChan(timer):
			timer = nil
			cfg, err := Load(path)
			if err != nil {
				logger.Warn("config reload failed", zap.String("path", path), zap.Error(err))
				continue
			}
			logger.Info("config reloaded",
				telemetry.EventField(telemetry.EventConfigReloaded),
				zap.String("path", path),
			)
			onReload(cfg)
		}
	}
}

func timerChan(timer *time.Timer) <-chan time.Time {
	if timer == nil {
		return nil
	}
	return timer.C
}
