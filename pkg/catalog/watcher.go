package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// StoreWatcher watches the provider configuration database file and
// invalidates the catalog when admin tooling rewrites it out-of-band.
// Events are debounced so a burst of writes triggers one invalidation.
type StoreWatcher struct {
	path     string
	catalog  *Catalog
	debounce time.Duration
	logger   *slog.Logger
}

// NewStoreWatcher creates a watcher over the provider store file at path.
func NewStoreWatcher(path string, cat *Catalog, debounce time.Duration) *StoreWatcher {
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	return &StoreWatcher{
		path:     path,
		catalog:  cat,
		debounce: debounce,
		logger:   slog.Default().With("component", "catalog.watcher"),
	}
}

// Watch blocks, invalidating the catalog on file changes, until the
// context is cancelled.
func (w *StoreWatcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory rather than the file itself: SQLite checkpoints
	// replace files, which breaks per-file watches.
	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %q: %w", dir, err)
	}

	w.logger.Info("provider store watcher started", "path", w.path)

	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("provider store watcher stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerCh = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case <-timerCh:
			timer = nil
			timerCh = nil
			if err := w.catalog.Invalidate(ctx); err != nil {
				w.logger.Error("catalog invalidation on store change failed", "error", err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("provider store watcher error", "error", err)
		}
	}
}

func (w *StoreWatcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	base := filepath.Base(w.path)
	name := filepath.Base(event.Name)
	// The WAL and journal side files change on every write.
	return name == base || name == base+"-wal" || name == base+"-journal"
}
