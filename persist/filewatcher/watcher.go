// Package filewatcher fires the enforcer's update callback when the policy
// file changes on disk, so edits made outside the process (deploy tooling,
// another instance's save) are picked up without polling.
package filewatcher

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/Sentinel-Gate/gatekit/event"
)

// Watcher implements persist.Watcher over an fsnotify file watch. Update is
// a no-op: a local save already rewrites the watched file, which is the
// notification.
type Watcher struct {
	path string
	fw   *fsnotify.Watcher

	mu       sync.RWMutex
	callback func(string)

	cancel context.CancelFunc
	done   chan struct{}
}

// New watches the policy file at path. The parent directory is watched so
// atomic rename-based saves are observed.
func New(path string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		path:   filepath.Clean(path),
		fw:     fw,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go w.watch(ctx)
	return w, nil
}

func (w *Watcher) watch(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			w.mu.RLock()
			cb := w.callback
			w.mu.RUnlock()
			if cb != nil {
				cb("policy file changed: " + w.path)
			}
		case _, ok := <-w.fw.Errors:
			if !ok {
				return
			}
		}
	}
}

// SetUpdateCallback installs the function invoked when the file changes.
func (w *Watcher) SetUpdateCallback(fn func(string)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callback = fn
	return nil
}

// Update is a no-op: saving through the file adapter already mutates the
// watched file.
func (w *Watcher) Update(ctx context.Context, d event.Data) error {
	return nil
}

// Close stops the watch loop.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.fw.Close()
	<-w.done
	return err
}
