package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

const testDebounce = 50 * time.Millisecond

// recorder collects rebuild batches.
type recorder struct {
	mu      sync.Mutex
	batches [][]string
}

func (r *recorder) rebuild(_ context.Context, changed []string) {
	r.mu.Lock()
	r.batches = append(r.batches, changed)
	r.mu.Unlock()
}

func (r *recorder) seen() map[string]bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]bool)
	for _, b := range r.batches {
		for _, p := range b {
			out[filepath.Base(p)] = true
		}
	}
	return out
}

func (r *recorder) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func startWatcher(t *testing.T, roots []string, exts []string, rec *recorder, opts ...WatcherOption) *Watcher {
	t.Helper()
	opts = append([]WatcherOption{WithDebounce(testDebounce)}, opts...)
	w := NewWatcher(roots, exts, rec.rebuild, opts...)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)
	return w
}

func TestWatcher_DebounceAndExtensionFilter(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, []string{dir}, []string{".txt", ".md"}, rec)

	for _, name := range []string{"a.txt", "b.md", "ignore.xyz"} {
		if err := writeFile(filepath.Join(dir, name), "hello"); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, func() bool {
		s := rec.seen()
		return s["a.txt"] && s["b.md"]
	})
	if rec.seen()["ignore.xyz"] {
		t.Error("ignore.xyz should not trigger a rebuild")
	}
	if n := rec.calls(); n > 2 {
		t.Errorf("calls=%d, want changes batched into at most 2", n)
	}
}

func TestWatcher_RemoveTriggersRebuild(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.txt")
	if err := writeFile(path, "x"); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	startWatcher(t, []string{dir}, []string{".txt"}, rec)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return rec.seen()["gone.txt"] })
}

func TestWatcher_NewDirectoryRecursive(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, []string{dir}, []string{".txt"}, rec)

	nested := filepath.Join(dir, "level1", "level2")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	// Give the watcher a moment to register the new directories.
	time.Sleep(100 * time.Millisecond)
	if err := writeFile(filepath.Join(nested, "deep.txt"), "deep content"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return rec.seen()["deep.txt"] })
}

func TestWatcher_IgnoredAndHiddenPaths(t *testing.T) {
	dir := t.TempDir()
	index := filepath.Join(dir, "index")
	if err := os.MkdirAll(index, 0755); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	startWatcher(t, []string{dir}, []string{".json", ".txt"}, rec, WithIgnore(index))

	if err := writeFile(filepath.Join(index, "documents.json"), "[]"); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(dir, ".draft.txt"), "x"); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(dir, "real.txt"), "x"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return rec.seen()["real.txt"] })

	s := rec.seen()
	if s["documents.json"] || s[".draft.txt"] {
		t.Errorf("ignored paths triggered a rebuild: %v", s)
	}
}

func TestWatcher_RebuildsDoNotOverlap(t *testing.T) {
	dir := t.TempDir()
	var mu sync.Mutex
	running, overlapped, calls := 0, false, 0
	slow := func(_ context.Context, _ []string) {
		mu.Lock()
		running++
		if running > 1 {
			overlapped = true
		}
		calls++
		mu.Unlock()
		time.Sleep(150 * time.Millisecond)
		mu.Lock()
		running--
		mu.Unlock()
	}
	w := NewWatcher([]string{dir}, nil, slow, WithDebounce(testDebounce))
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := writeFile(filepath.Join(dir, "one.txt"), "1"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { mu.Lock(); defer mu.Unlock(); return calls >= 1 })
	if err := writeFile(filepath.Join(dir, "two.txt"), "2"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { mu.Lock(); defer mu.Unlock(); return calls >= 2 })

	mu.Lock()
	defer mu.Unlock()
	if overlapped {
		t.Error("rebuilds overlapped")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w := NewWatcher([]string{t.TempDir()}, nil, nil)
	w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	w = NewWatcher([]string{t.TempDir()}, nil, nil)
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()
	w.Stop()
	w.Stop()
}

func TestWatcher_StartMissingRoot(t *testing.T) {
	w := NewWatcher([]string{filepath.Join(t.TempDir(), "missing")}, nil, nil)
	if err := w.Start(context.Background()); err == nil {
		w.Stop()
		t.Fatal("expected error for missing root")
	}
}

func TestWatcher_Directories(t *testing.T) {
	dir := t.TempDir()
	w := NewWatcher([]string{dir + string(filepath.Separator)}, nil, nil)
	dirs := w.Directories()
	if len(dirs) != 1 || dirs[0] != filepath.Clean(dir) {
		t.Errorf("Directories() = %v", dirs)
	}
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/a/b.txt", []string{".txt"}, true},
		{"/a/b.TXT", []string{".txt"}, true},
		{"/a/b.txt", []string{"txt"}, true},
		{"/a/b.md", []string{".txt"}, false},
		{"/a/b", nil, true},
		{"/a/b", []string{}, true},
	}
	for _, tt := range tests {
		got := matchExtension(tt.path, tt.extensions)
		if got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}

func TestInDir(t *testing.T) {
	tests := []struct {
		dir  string
		path string
		want bool
	}{
		{"/tmp/a", "/tmp/a", true},
		{"/tmp/a", "/tmp/a/b.txt", true},
		{"/tmp/a", "/tmp/b", false},
		{"/tmp/a", "/tmp/a/../b", false},
	}
	for _, tt := range tests {
		got := inDir(tt.dir, tt.path)
		if got != tt.want {
			t.Errorf("inDir(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}

func TestHidden(t *testing.T) {
	for name, want := range map[string]bool{".swp": true, "a.txt~": true, "a.txt": false} {
		if got := hidden(name); got != want {
			t.Errorf("hidden(%q)=%v, want %v", name, got, want)
		}
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0600)
}
