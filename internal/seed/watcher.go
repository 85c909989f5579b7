package seed

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/menutree/internal/storage"
	"github.com/starford/menutree/internal/store"
)

// DefaultDebounce coalesces editor save bursts into a single import.
const DefaultDebounce = 200 * time.Millisecond

// ImportCallback is called after a watcher-driven import changed records.
type ImportCallback func(res Result)

// Watch starts an fsnotify watcher on the seed root and re-runs Sync whenever
// a YAML file is created, written, renamed or removed, until ctx is cancelled.
// Events are debounced; cb (if non-nil) runs after each import that wrote
// records.
func Watch(ctx context.Context, st store.Store, files storage.Provider, root string, debounce time.Duration, logger *slog.Logger, cb ImportCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	logger.Info("seed watcher: started", slog.String("root", root))

	var timer *time.Timer
	var fire <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			fire = timer.C
			return
		}
		timer.Reset(debounce)
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("seed watcher: stopped")
			return nil

		case <-fire:
			res, err := Sync(ctx, st, files, logger)
			if err != nil {
				logger.Warn("seed watcher: sync failed", slog.String("error", err.Error()))
				continue
			}
			if res.Changed() && cb != nil {
				cb(res)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if err := addDirsRecursive(w, ev.Name); err == nil {
					// A new directory may already hold seed files.
					schedule()
					continue
				}
			}
			if !storage.IsSeedFile(filepath.Base(ev.Name)) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) != 0 {
				logger.Debug("seed watcher: change", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("seed watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
// It fails when root is not a directory.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			if path == root {
				return fs.ErrInvalid
			}
			return nil
		}
		return w.Add(path)
	})
}
