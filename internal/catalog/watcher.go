package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/okian/botpulse/pkg/logger"
	"github.com/okian/botpulse/pkg/metrics"
)

const defaultDebounce = 250 * time.Millisecond

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long the file must be quiet before a reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the watcher logger.
func WithLogger(l logger.Logger) WatcherOption {
	return func(w *Watcher) {
		w.log = l
	}
}

// WithOnChange registers a callback run after every successful reload.
func WithOnChange(fn func(*Catalog)) WatcherOption {
	return func(w *Watcher) {
		w.onChange = append(w.onChange, fn)
	}
}

// Watcher holds the current catalog and swaps it when the file changes.
// A file that fails to parse leaves the previous catalog in place.
type Watcher struct {
	path     string
	debounce time.Duration
	log      logger.Logger
	onChange []func(*Catalog)

	current atomic.Pointer[Catalog]

	mu      sync.Mutex
	fs      *fsnotify.Watcher
	timer   *time.Timer
	done    chan struct{}
	stopped chan struct{}
}

// NewWatcher loads path and returns a watcher serving it. Call Start to
// follow changes.
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{path: path, debounce: defaultDebounce}
	for _, opt := range opts {
		opt(w)
	}
	if w.log == nil {
		w.log = logger.Nop()
	}
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	w.current.Store(c)
	return w, nil
}

// Static wraps an already loaded catalog. Start and Stop are no-ops.
func Static(c *Catalog) *Watcher {
	w := &Watcher{log: logger.Nop()}
	w.current.Store(c)
	return w
}

// Current returns the catalog in effect.
func (w *Watcher) Current() *Catalog {
	return w.current.Load()
}

// Reload reads the file now.
func (w *Watcher) Reload(ctx context.Context) error {
	c, err := Load(w.path)
	if err != nil {
		metrics.RecordCatalogReload("error")
		w.log.Warn(ctx, "catalog reload failed, keeping previous catalog",
			logger.String("path", w.path), logger.Error(err))
		return err
	}
	w.current.Store(c)
	metrics.RecordCatalogReload("ok")
	w.log.Info(ctx, "catalog reloaded",
		logger.String("path", w.path), logger.Int("departments", len(c.Departments)))
	for _, fn := range w.onChange {
		fn(c)
	}
	return nil
}

// Start watches the catalog's directory. Editors often replace files by
// rename, so the directory is watched and events are filtered by name.
func (w *Watcher) Start(ctx context.Context) error {
	if w.path == "" {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fs != nil {
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoadCatalog, err)
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		_ = fw.Close()
		return fmt.Errorf("%w: %w", ErrLoadCatalog, err)
	}
	w.fs = fw
	w.done = make(chan struct{})
	w.stopped = make(chan struct{})
	go w.loop(ctx, fw, w.done, w.stopped)
	return nil
}

// Stop ends watching.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	fw, done, stopped := w.fs, w.done, w.stopped
	w.fs = nil
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	if fw == nil {
		return nil
	}
	close(done)
	err := fw.Close()
	<-stopped
	return err
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher, done, stopped chan struct{}) {
	defer close(stopped)
	name := filepath.Clean(w.path)
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule(ctx)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.log.Warn(ctx, "catalog watcher error", logger.Error(err))
		}
	}
}

// schedule coalesces bursts of events into one reload.
func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		_ = w.Reload(ctx)
	})
}
