// Package watch turns file system notifications into debounced batches of
// changed paths for the engine.
package watch

import (
	"context"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/dusk-indust/codesweep/internal/source"
)

// DefaultDebounce is the quiet period before a batch is delivered.
const DefaultDebounce = 300 * time.Millisecond

// Handler receives one batch of changed paths, sorted and deduplicated. It
// runs on the watcher goroutine; events arriving meanwhile are buffered.
type Handler func(ctx context.Context, paths []string)

// Options configures a Watcher. Classifier is required.
type Options struct {
	Classifier *source.Classifier
	Debounce   time.Duration
	Logger     *zap.Logger
}

// Watcher watches a directory tree recursively. Directories the classifier
// skips are not watched, and only tracked files are reported.
type Watcher struct {
	root       string
	fsw        *fsnotify.Watcher
	classifier *source.Classifier
	handler    Handler
	debounce   time.Duration
	logger     *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// New creates a Watcher and registers every directory under root. Events
// are queued from the moment New returns, and delivered once Run is called.
func New(root string, handler Handler, opts Options) (*Watcher, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		root:       root,
		fsw:        fsw,
		classifier: opts.Classifier,
		handler:    handler,
		debounce:   opts.Debounce,
		logger:     opts.Logger.Named("watch"),
	}
	if err := w.addTree(root, nil); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run delivers batches until ctx is done, then closes the watcher. A batch
// still pending at cancellation is dropped.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.Close()

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if w.collect(ev, pending) {
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			paths := slices.Sorted(maps.Keys(pending))
			clear(pending)
			w.logger.Debug("delivering batch", zap.Int("paths", len(paths)))
			w.handler(ctx, paths)
		}
	}
}

// Close releases the underlying notifier. It is safe to call more than once.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		w.closeErr = w.fsw.Close()
	})
	return w.closeErr
}

// collect adds the paths touched by ev to pending and reports whether
// anything was added.
func (w *Watcher) collect(ev fsnotify.Event, pending map[string]struct{}) bool {
	if w.ignored(ev.Name) {
		return false
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			// Files written before the new directory was registered would
			// otherwise be missed.
			n := len(pending)
			if err := w.addTree(ev.Name, pending); err != nil {
				w.logger.Warn("watch new directory", zap.String("dir", ev.Name), zap.Error(err))
			}
			return len(pending) > n
		}
	}
	if !w.classifier.Tracked(ev.Name) {
		return false
	}
	pending[ev.Name] = struct{}{}
	return true
}

// addTree registers dir and its subdirectories. With a non-nil pending,
// tracked files found on the way are added to it.
func (w *Watcher) addTree(dir string, pending map[string]struct{}) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			if pending != nil && d.Type().IsRegular() && w.classifier.Tracked(p) {
				pending[p] = struct{}{}
			}
			return nil
		}
		if p != w.root && w.classifier.SkipDir(d.Name()) {
			return filepath.SkipDir
		}
		return w.fsw.Add(p)
	})
}

// ignored reports whether path lies in a skipped directory below root.
func (w *Watcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return true
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for _, dir := range parts[:len(parts)-1] {
		if w.classifier.SkipDir(dir) {
			return true
		}
	}
	return false
}
