// Package watch reloads the loader when its config file changes on disk.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/kingrea/modpath/internal/logging"
)

// DefaultDebounce coalesces the burst of events editors emit on save.
const DefaultDebounce = 100 * time.Millisecond

// Option customizes a Watcher.
type Option func(*Watcher)

// WithLogger overrides the default discarding logger.
func WithLogger(l *log.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// Watcher monitors a configuration file for changes.
type Watcher struct {
	path     string
	callback func() error
	logger   *log.Logger
	debounce time.Duration

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a watcher that calls callback after path is written, created
// or removed.
func New(path string, callback func() error, opts ...Option) *Watcher {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	w := &Watcher{
		path:     filepath.Clean(abs),
		callback: callback,
		logger:   logging.Discard(),
		debounce: DefaultDebounce,
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// Path returns the watched file.
func (w *Watcher) Path() string {
	return w.path
}

// Start begins watching the configuration file.
func (w *Watcher) Start(ctx context.Context) error {
	if w.callback == nil {
		return fmt.Errorf("watch: callback is required")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}

	// Watch the directory so atomic saves that replace the file are seen.
	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch: add %s: %w", dir, err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer watcher.Close()

		w.logger.Info("watching config", "path", w.path)

		// Reloads run on this goroutine so Stop waits for them.
		var (
			timer   *time.Timer
			pending <-chan time.Time
		)
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()
		const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != w.path {
					continue
				}
				if event.Op&relevant == 0 {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(w.debounce)
				} else {
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					timer.Reset(w.debounce)
				}
				pending = timer.C

			case <-pending:
				pending = nil
				w.reload()

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("config watcher error", "err", err)

			case <-w.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the watcher and waits for it to exit. It is safe to call more
// than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	w.wg.Wait()
}

func (w *Watcher) reload() {
	w.logger.Info("config change detected, reloading", "path", w.path)
	if err := w.callback(); err != nil {
		w.logger.Error("config reload failed", "path", w.path, "err", err)
	}
}
