// Package watcher provides file system watching for materialized session
// workspaces. It monitors a session directory tree and notifies the preview
// layer when generated files change on disk.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

const debounceDelay = 200 * time.Millisecond

// WorkspaceWatcher watches one session's workspace directory (recursively)
// and coalesces bursts of file events into a single change notification.
type WorkspaceWatcher struct {
	watcher *fsnotify.Watcher
	log     *logrus.Entry

	mu          sync.Mutex
	onChange    func(paths []string)
	root        string
	watchedDirs map[string]bool
	pending     map[string]bool
	timer       *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
}

// NewWorkspaceWatcher creates a watcher; call Watch to point it at a session
// directory.
func NewWorkspaceWatcher(log *logrus.Entry) (*WorkspaceWatcher, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	ww := &WorkspaceWatcher{
		watcher:     w,
		log:         log,
		watchedDirs: make(map[string]bool),
		pending:     make(map[string]bool),
		ctx:         ctx,
		cancel:      cancel,
	}

	go ww.run()
	return ww, nil
}

// SetOnChange registers the callback fired after each debounced burst of
// writes with the set of changed paths (relative to the watched root). The
// run goroutine is already live when the constructor returns, so the
// registration is synchronized with flush.
func (ww *WorkspaceWatcher) SetOnChange(fn func(paths []string)) {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	ww.onChange = fn
}

// Watch starts watching the given directory tree, replacing any previously
// watched root.
func (ww *WorkspaceWatcher) Watch(root string) error {
	ww.mu.Lock()
	defer ww.mu.Unlock()

	for dir := range ww.watchedDirs {
		_ = ww.watcher.Remove(dir)
		delete(ww.watchedDirs, dir)
	}
	ww.root = root

	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := ww.watcher.Add(path); err != nil {
				return err
			}
			ww.watchedDirs[path] = true
		}
		return nil
	})
}

// Close stops the watcher.
func (ww *WorkspaceWatcher) Close() error {
	ww.cancel()
	return ww.watcher.Close()
}

func (ww *WorkspaceWatcher) run() {
	for {
		select {
		case <-ww.ctx.Done():
			return
		case event, ok := <-ww.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) {
				ww.handleEvent(event)
			}
		case err, ok := <-ww.watcher.Errors:
			if !ok {
				return
			}
			ww.log.WithError(err).Warn("workspace watcher error")
		}
	}
}

func (ww *WorkspaceWatcher) handleEvent(event fsnotify.Event) {
	ww.mu.Lock()
	defer ww.mu.Unlock()

	// New directories appear as the syncer materializes nested trees; start
	// watching them too.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := ww.watcher.Add(event.Name); err == nil {
				ww.watchedDirs[event.Name] = true
			}
			return
		}
	}

	rel, err := filepath.Rel(ww.root, event.Name)
	if err != nil {
		rel = event.Name
	}
	ww.pending[rel] = true

	if ww.timer != nil {
		ww.timer.Stop()
	}
	ww.timer = time.AfterFunc(debounceDelay, ww.flush)
}

func (ww *WorkspaceWatcher) flush() {
	ww.mu.Lock()
	paths := make([]string, 0, len(ww.pending))
	for p := range ww.pending {
		paths = append(paths, p)
	}
	ww.pending = make(map[string]bool)
	onChange := ww.onChange
	ww.mu.Unlock()

	if len(paths) > 0 && onChange != nil {
		onChange(paths)
	}
}
