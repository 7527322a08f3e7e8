package catalog

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/jingkaihe/skillet/pkg/logger"
)

// Watcher hot-reloads the catalog. It watches the builder's roots,
// collapses bursts of file events into one rebuild, and publishes the
// replacement index atomically through the store. A failed rebuild keeps
// the previous index serving.
type Watcher struct {
	store    *Store
	builder  *Builder
	debounce time.Duration
	attempts uint
	onSwap   func(old, next *Index)
}

// WatcherOption configures a Watcher
type WatcherOption func(*Watcher)

// WithDebounce sets how long the watcher waits for the file system to
// settle before rebuilding. Defaults to 500ms.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithRebuildAttempts sets how many times a failed rebuild is retried.
// Editors write skill files in bursts, so the first attempt can observe
// a half-written document. Defaults to 3.
func WithRebuildAttempts(n uint) WatcherOption {
	return func(w *Watcher) {
		w.attempts = n
	}
}

// WithOnSwap registers a callback invoked after each successful swap
func WithOnSwap(fn func(old, next *Index)) WatcherOption {
	return func(w *Watcher) {
		w.onSwap = fn
	}
}

// NewWatcher creates a catalog watcher publishing through store
func NewWatcher(store *Store, builder *Builder, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		store:    store,
		builder:  builder,
		debounce: 500 * time.Millisecond,
		attempts: 3,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches the catalog roots until the context is cancelled
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create file watcher")
	}
	defer watcher.Close()

	roots := expandRoots(w.builder.roots)
	if len(roots) == 0 {
		return errors.New("no catalog roots exist to watch")
	}

	for _, root := range roots {
		if err := addRecursive(watcher, root); err != nil {
			return errors.Wrapf(err, "failed to watch %s", root)
		}
	}

	log := logger.G(ctx)
	log.WithField("roots", roots).Info("catalog watcher started")

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevantEvent(event) {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = addRecursive(watcher, event.Name)
				}
			}
			log.WithFields(map[string]interface{}{
				"file":      event.Name,
				"operation": event.Op.String(),
			}).Debug("catalog change detected")

			if pending && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(w.debounce)
			pending = true

		case <-timer.C:
			pending = false
			w.rebuild(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Error("catalog watcher error")

		case <-ctx.Done():
			return nil
		}
	}
}

// rebuild builds a replacement index with retries and swaps it in. On
// final failure the previous index stays published.
func (w *Watcher) rebuild(ctx context.Context) {
	log := logger.G(ctx)

	var next *Index
	err := retry.Do(
		func() error {
			idx, err := w.builder.Build(ctx)
			if err != nil {
				return err
			}
			next = idx
			return nil
		},
		retry.Attempts(w.attempts),
		retry.Delay(100*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			log.WithError(err).WithField("attempt", n+1).Warn("catalog rebuild failed, retrying")
		}),
	)
	if err != nil {
		log.WithError(err).Error("catalog rebuild failed, keeping previous index")
		return
	}

	old := w.store.Swap(next)
	log.WithFields(map[string]interface{}{
		"skills":     next.Len(),
		"generation": next.Generation(),
	}).Info("catalog swapped")

	if w.onSwap != nil {
		w.onSwap(old, next)
	}
}

// relevantEvent filters to changes that can alter the catalog
func relevantEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	if base == skillFileName {
		return true
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".md", ".markdown", ".txt":
		return true
	case "":
		// Likely a directory being created, removed or renamed.
		return true
	}
	return false
}

func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if name == ".git" || name == "node_modules" || (strings.HasPrefix(name, ".") && path != root) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}
