package internal

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/raido/pkg/config"
)

// watchConfig watches the config file and calls apply with a freshly
// loaded, validated Config after each change. A file that fails to load
// or validate is rejected with a warning and the previous settings stay
// in force.
//
// The watch is on the file's directory, not its inode: editors and
// configmap mounts replace the file on save, which would kill a direct
// watch. Bursts of events are debounced before the reload.
func watchConfig(ctx context.Context, path string, logger *slog.Logger, apply func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	target := filepath.Clean(path)
	if err := w.Add(filepath.Dir(target)); err != nil {
		return err
	}

	logger.Info("config watcher: started", slog.String("file", target))

	// reloadTimer debounces editor write bursts.
	var reloadTimer *time.Timer
	var reloadCh <-chan time.Time

	scheduleReload := func() {
		if reloadTimer == nil {
			reloadTimer = time.NewTimer(300 * time.Millisecond)
			reloadCh = reloadTimer.C
		} else {
			reloadTimer.Reset(300 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			logger.Info("config watcher: stopped")
			return nil

		case <-reloadCh:
			cfg := NewDefaultConfig()
			if err := config.Load(target, cfg); err != nil {
				logger.Warn("config watcher: reload rejected",
					slog.String("file", target),
					slog.String("error", err.Error()))
				continue
			}
			apply(cfg)
			logger.Info("config watcher: applied",
				slog.Int("rate_limit_per_minute", cfg.RateLimit.PerMinute))

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			scheduleReload()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("config watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
