package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// reloadDelay coalesces the burst of events a single editor save produces.
const reloadDelay = 200 * time.Millisecond

// Watch reloads the config at path whenever it changes and hands the result
// to onChange. It watches the parent directory so that saves which replace
// the file (rename over, delete and create) keep being seen. It returns when
// ctx is cancelled.
//
// A reload that fails to parse or validate is logged and skipped; the
// caller keeps running with what it already has.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}
	zap.L().Info("config: watching for changes", zap.String("path", abs))

	timer := time.NewTimer(reloadDelay)
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
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(reloadDelay)

		case <-timer.C:
			cfg, err := Load(abs)
			if err != nil {
				zap.L().Error("config: reload failed, keeping previous config",
					zap.String("path", abs), zap.Error(err))
				continue
			}
			zap.L().Info("config: reloaded",
				zap.String("path", abs),
				zap.String("log_level", cfg.Agent.LogLevel),
				zap.Int("alert_rules", len(cfg.Alerts.Rules)))
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			zap.L().Warn("config: watcher error", zap.Error(err))
		}
	}
}
