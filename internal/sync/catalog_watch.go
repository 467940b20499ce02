package sync

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce coalesces the burst of events an editor or a config
// sync produces for one save.
const DefaultWatchDebounce = 250 * time.Millisecond

// WatchCatalogFile signals out whenever the file at path is written or
// created, until ctx is done. The parent directory is watched so
// atomic replaces are seen. Events within debounce of each other produce one
// signal, and a signal is dropped while out is full.
func WatchCatalogFile(ctx context.Context, path string, debounce time.Duration, out chan<- struct{}, logger *slog.Logger) error {
	if out == nil {
		return errors.New("catalog signal channel is nil")
	}
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			timer.Reset(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("catalog file watch error", "path", abs, "err", err)
		case <-timer.C:
			select {
			case out <- struct{}{}:
			default:
			}
		}
	}
}
