// Package watcher provides an fsnotify-based inbox watcher that
// admits PDF files dropped into a configured directory.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Writes arrive in bursts while a file is copied in; the debounce
// waits for them to settle before admitting.
const defaultDebounce = 400 * time.Millisecond

// Inbox watches a single directory and invokes onAdmit for each PDF
// that appears in it. Admission failures (including duplicate
// content) are the callback's concern; the watcher only reports.
type Inbox struct {
	root     string
	onAdmit  func(path string)
	debounce time.Duration
	logger   *zap.Logger

	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	debounceMap map[string]*time.Timer
	done        chan struct{}
	started     bool
	stopOnce    sync.Once
}

// NewInbox creates an inbox watcher for root. onAdmit is called for
// each PDF file created or modified under it.
func NewInbox(root string, onAdmit func(path string), logger *zap.Logger) *Inbox {
	return &Inbox{
		root:        root,
		onAdmit:     onAdmit,
		debounce:    defaultDebounce,
		logger:      logger,
		debounceMap: make(map[string]*time.Timer),
		done:        make(chan struct{}),
	}
}

// Start begins watching. It runs until ctx is cancelled or Stop is called.
func (w *Inbox) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	if err := os.MkdirAll(w.root, 0755); err != nil {
		w.mu.Unlock()
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	if err := watcher.Add(w.root); err != nil {
		_ = watcher.Close()
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	w.started = true
	w.mu.Unlock()

	w.logger.Info("inbox watcher started", zap.String("root", w.root))
	go w.run(ctx)
	return nil
}

// SyncExisting admits PDFs already present in the inbox. Useful at
// startup so files dropped while the server was down are not missed.
func (w *Inbox) SyncExisting() {
	entries, err := os.ReadDir(w.root)
	if err != nil {
		w.logger.Warn("inbox sync failed", zap.Error(err))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(w.root, entry.Name())
		if isPDF(path) {
			w.onAdmit(path)
		}
	}
}

func (w *Inbox) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Debug("inbox watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Inbox) handleEvent(ev fsnotify.Event) {
	switch ev.Op {
	case fsnotify.Create, fsnotify.Write:
		if isPDF(ev.Name) {
			w.debounceAdmit(ev.Name)
		}
	case fsnotify.Remove:
		w.cancelDebounce(ev.Name)
	}
}

func (w *Inbox) debounceAdmit(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
	}
	t := time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.debounceMap, path)
		w.mu.Unlock()
		w.logger.Debug("inbox admitting file", zap.String("path", path))
		w.onAdmit(path)
	})
	w.debounceMap[path] = t
}

func (w *Inbox) cancelDebounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
		delete(w.debounceMap, path)
	}
}

// Stop stops the watcher. Safe to call more than once.
func (w *Inbox) Stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		close(w.done)
		for path, t := range w.debounceMap {
			t.Stop()
			delete(w.debounceMap, path)
		}
		if w.watcher != nil {
			_ = w.watcher.Close()
			w.watcher = nil
		}
		w.started = false
	})
}

func isPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}
