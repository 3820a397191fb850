// Package confloader loads server configuration.
package confloader

import (
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a configuration file and invokes callbacks when it
// changes. Used for runtime log-level adjustment.
type Watcher struct {
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	mu        sync.RWMutex
	callbacks []func(string)

	done chan struct{}
}

// NewWatcher creates a configuration file watcher.
func NewWatcher(logger *slog.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		watcher: w,
		logger:  logger,
		done:    make(chan struct{}),
	}, nil
}

// Watch adds a file to the watch set. The parent directory is
// watched instead of the file itself to catch editor-style
// rename-and-replace writes.
func (w *Watcher) Watch(path string) error {
	dir := filepath.Dir(path)
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	w.logger.Debug("watching config directory", "dir", dir, "file", filepath.Base(path))
	return nil
}

// OnChange registers a callback invoked with the changed file path.
func (w *Watcher) OnChange(callback func(string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start watches for changes until Stop is called. Runs in its own
// goroutine.
func (w *Watcher) Start() {
	go func() {
		for {
			select {
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					w.logger.Debug("config file changed", "file", event.Name, "op", event.Op.String())
					w.notify(event.Name)
				}
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Error("config watcher error", "error", err)
			case <-w.done:
				return
			}
		}
	}()
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) notify(path string) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, cb := range w.callbacks {
		cb(path)
	}
}
