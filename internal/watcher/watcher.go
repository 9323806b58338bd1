// Package watcher triggers index rebuilds when files under the watched roots change.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 500 * time.Millisecond

// RebuildFunc is called with the paths that changed since the last call, sorted.
// Calls never overlap; changes seen while one runs are delivered in the next.
type RebuildFunc func(ctx context.Context, changed []string)

// Watcher watches directory trees and batches file changes into rebuild calls.
type Watcher struct {
	roots      []string
	extensions []string
	recursive  bool
	debounce   time.Duration
	ignore     []string
	onChange   RebuildFunc
	logger     *zap.Logger

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	pending  map[string]struct{}
	done     chan struct{}
	finished chan struct{}
	started  bool
	launched bool
	stopOnce sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets the logger. Events are logged at debug level.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long the tree must be quiet before a rebuild fires.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithRecursive controls whether subdirectories are watched. Default true.
func WithRecursive(recursive bool) WatcherOption {
	return func(w *Watcher) { w.recursive = recursive }
}

// WithIgnore excludes paths (and everything below them) from triggering rebuilds,
// e.g. an index directory that lives inside a watched root.
func WithIgnore(paths ...string) WatcherOption {
	return func(w *Watcher) {
		for _, p := range paths {
			if abs, err := filepath.Abs(p); err == nil {
				w.ignore = append(w.ignore, abs)
			}
		}
	}
}

// NewWatcher creates a watcher over roots. extensions filter which files count as
// changes (empty means all files).
func NewWatcher(roots []string, extensions []string, onChange RebuildFunc, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		extensions: extensions,
		recursive:  true,
		debounce:   defaultDebounce,
		onChange:   onChange,
		logger:     zap.NewNop(),
		pending:    make(map[string]struct{}),
		done:       make(chan struct{}),
		finished:   make(chan struct{}),
	}
	for _, r := range roots {
		if abs, err := filepath.Abs(r); err == nil {
			w.roots = append(w.roots, filepath.Clean(abs))
		}
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. It returns once every root is registered; rebuilds run
// in the background until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = fw
	for _, root := range w.roots {
		if err := w.addTree(root); err != nil {
			_ = fw.Close()
			w.watcher = nil
			return err
		}
	}
	w.started = true
	w.launched = true
	w.logger.Debug("watcher starting",
		zap.Strings("roots", w.roots),
		zap.Strings("extensions", w.extensions),
		zap.Bool("recursive", w.recursive),
		zap.Duration("debounce", w.debounce))

	batches := make(chan []string)
	go w.rebuildLoop(ctx, batches)
	go w.run(ctx, fw, batches)
	return nil
}

// addTree registers root, and its subdirectories when recursive. Caller holds mu.
func (w *Watcher) addTree(root string) error {
	if !w.recursive {
		return w.watcher.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && (strings.HasPrefix(d.Name(), ".") || w.ignored(path)) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher, batches chan<- []string) {
	defer close(batches)
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	armed := false
	arm := func() {
		if armed && !timer.Stop() {
			<-timer.C
		}
		timer.Reset(w.debounce)
		armed = true
	}

	for {
		select {
		case <-ctx.Done():
			w.shutdown()
			return
		case <-w.done:
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if w.handleEvent(ev) {
				arm()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		case <-timer.C:
			armed = false
			batch := w.takePending()
			if len(batch) == 0 {
				continue
			}
			select {
			case batches <- batch:
			default:
				// A rebuild is still running; fold the batch back in and wait again.
				w.restorePending(batch)
				arm()
			}
		}
	}
}

func (w *Watcher) rebuildLoop(ctx context.Context, batches <-chan []string) {
	defer close(w.finished)
	for batch := range batches {
		w.logger.Debug("watcher triggering rebuild", zap.Strings("changed", batch))
		if w.onChange != nil {
			w.onChange(ctx, batch)
		}
	}
}

// handleEvent records a relevant change and reports whether it should (re)arm the
// debounce timer.
func (w *Watcher) handleEvent(ev fsnotify.Event) bool {
	path := filepath.Clean(ev.Name)
	if w.ignored(path) || hidden(filepath.Base(path)) {
		return false
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if w.recursive {
				w.mu.Lock()
				if w.watcher != nil {
					if err := w.addTree(path); err != nil {
						w.logger.Debug("watcher failed to add directory", zap.String("path", path), zap.Error(err))
					}
				}
				w.mu.Unlock()
			}
			return w.markDirectory(path)
		}
	}
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	if !matchExtension(path, w.extensions) {
		return false
	}
	w.mu.Lock()
	w.pending[path] = struct{}{}
	w.mu.Unlock()
	return true
}

// markDirectory queues every matching file under a directory that appeared.
func (w *Watcher) markDirectory(dir string) bool {
	found := false
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if matchExtension(path, w.extensions) {
			w.mu.Lock()
			w.pending[path] = struct{}{}
			w.mu.Unlock()
			found = true
		}
		return nil
	})
	return found
}

func (w *Watcher) takePending() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	batch := make([]string, 0, len(w.pending))
	for p := range w.pending {
		batch = append(batch, p)
	}
	w.pending = make(map[string]struct{})
	sort.Strings(batch)
	return batch
}

func (w *Watcher) restorePending(batch []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range batch {
		w.pending[p] = struct{}{}
	}
}

func (w *Watcher) ignored(path string) bool {
	for _, ig := range w.ignore {
		if path == ig || inDir(ig, path) {
			return true
		}
	}
	return false
}

func hidden(name string) bool {
	// Editors write swap and temp files next to the real one.
	return strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~")
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

// Directories returns the watched roots.
func (w *Watcher) Directories() []string {
	return append([]string(nil), w.roots...)
}

// Stop stops watching. A rebuild already in progress finishes first, so Stop must
// not be called from the RebuildFunc.
func (w *Watcher) Stop() {
	w.shutdown()
	w.mu.Lock()
	launched := w.launched
	w.mu.Unlock()
	if launched {
		<-w.finished
	}
}

func (w *Watcher) shutdown() {
	w.mu.Lock()
	if w.started {
		_ = w.watcher.Close()
		w.watcher = nil
		w.started = false
	}
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
