package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"trailfield/core"
)

// WatchDebounce is how long the watcher waits after the last file event
// before reloading.
var WatchDebounce = 200 * time.Millisecond

// Watch reloads path whenever it changes and pushes the profile and
// parameter values to the frame loop through queue. Settings that need a
// restart are only logged. It blocks until ctx is done.
func Watch(ctx context.Context, path string, current Settings, queue *core.ConfigQueue, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	// Editors replace files by rename, so watch the directory.
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	log.Info("watching settings", zap.String("path", abs))

	debounce := time.NewTimer(WatchDebounce)
	if !debounce.Stop() {
		<-debounce.C
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			debounce.Reset(WatchDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("watcher error", zap.Error(err))

		case <-debounce.C:
			next, err := Load(abs)
			if err != nil {
				log.Warn("settings reload rejected", zap.Error(err))
				continue
			}
			if restartRequired(current, next) {
				log.Warn("window, deposit, normal map or server settings changed - restart required")
			}
			err = queue.Submit(ctx, next.ApplyTo)
			switch {
			case err == nil:
				log.Info("settings reloaded", zap.String("profile", next.Profile), zap.Int("overrides", len(next.Params)))
			case ctx.Err() != nil, errors.Is(err, core.ErrQueueClosed):
				return nil
			default:
				log.Warn("settings reload partly rejected", zap.Error(err))
			}
			current = next

		case <-ctx.Done():
			return nil
		}
	}
}

func restartRequired(a, b Settings) bool {
	return a.Window != b.Window ||
		a.Deposits != b.Deposits ||
		a.NormalMap != b.NormalMap ||
		a.Server != b.Server ||
		a.Log != b.Log
}
