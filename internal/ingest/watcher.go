package ingest

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"dossier/internal/logging"
)

// Watcher re-runs an Ingester whenever a supported file under dir changes.
// Bursts of events within the debounce window produce one rebuild.
type Watcher struct {
	mu        sync.Mutex
	fs        *fsnotify.Watcher
	ingester  *Ingester
	dir       string
	debounce  time.Duration
	pending   time.Time
	onRebuild func(Result, error)
	stopCh    chan struct{}
	doneCh    chan struct{}
	running   bool
	rebuilds  int
}

// NewWatcher creates a stopped watcher. onRebuild may be nil.
func NewWatcher(in *Ingester, dir string, debounce time.Duration, onRebuild func(Result, error)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		fs:        fw,
		ingester:  in,
		dir:       dir,
		debounce:  debounce,
		onRebuild: onRebuild,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}, nil
}

// Start registers dir and its subdirectories and begins the event loop.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	err := filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != w.dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return w.fs.Add(path)
		}
		return nil
	})
	if err != nil {
		w.fs.Close()
		return err
	}
	logging.Ingest("Watching %s for document changes", w.dir)

	go w.run(ctx)
	return nil
}

// Stop ends the loop and releases the fsnotify handle.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	if err := w.fs.Close(); err != nil {
		logging.IngestWarn("Watcher close failed: %v", err)
	}
}

// Rebuilds reports how many rebuilds have completed.
func (w *Watcher) Rebuilds() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rebuilds
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := time.NewTicker(w.debounce / 4)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			logging.IngestWarn("Watcher error: %v", err)
		case now := <-tick.C:
			w.mu.Lock()
			due := !w.pending.IsZero() && now.Sub(w.pending) >= w.debounce
			if due {
				w.pending = time.Time{}
			}
			w.mu.Unlock()
			if due {
				w.rebuild(ctx)
			}
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op&fsnotify.Create != 0 {
		// New subdirectories need their own watch.
		if isDir(ev.Name) {
			_ = w.fs.Add(ev.Name)
			return
		}
	}
	if !Supported(ev.Name) {
		return
	}
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	logging.IngestDebug("Watcher: %s %s", ev.Op, ev.Name)
	w.mu.Lock()
	w.pending = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) rebuild(ctx context.Context) {
	res, err := w.ingester.Run(ctx, w.dir)
	if err != nil {
		logging.IngestWarn("Re-index failed: %v", err)
	}
	w.mu.Lock()
	w.rebuilds++
	w.mu.Unlock()
	if w.onRebuild != nil {
		w.onRebuild(res, err)
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
