package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/shirabe/internal/models"
)

func TestArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after query are moved first",
			args:     []string{"open the airway", "-top-k", "3"},
			expected: []string{"-top-k", "3", "open the airway"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-top-k", "3", "open the airway"},
			expected: []string{"-top-k", "3", "open the airway"},
		},
		{
			name:     "query only returns unchanged",
			args:     []string{"open the airway"},
			expected: []string{"open the airway"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "path then flag",
			args:     []string{"./manual", "--watch"},
			expected: []string{"--watch", "./manual"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("argsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildSearchQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"airway"}, "airway"},
		{"multiple words", []string{"open", "airway"}, "open airway"},
		{"single quoted phrase", []string{"open airway"}, "open airway"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildSearchQuery(tt.args)
			if got != tt.expected {
				t.Errorf("buildSearchQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
storage:
  path: "./db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	chdir(t, dir)

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
	if filepath.Base(cfg.Storage.Path) != "db" || !filepath.IsAbs(cfg.Storage.Path) {
		t.Errorf("storage path = %s", cfg.Storage.Path)
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Addr() != "127.0.0.1:9000" {
		t.Errorf("unexpected server addr: %s", cfg.Server.Addr())
	}
}

func TestLoadConfig_missingExplicitPath(t *testing.T) {
	if _, _, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

// workspace is a temp dir with a config using the hash embedder, a small HTML
// manual and a bookmark mapping for its headings.
type workspace struct {
	config    string
	manual    string
	bookmarks string
}

func newWorkspace(t *testing.T) workspace {
	t.Helper()
	dir := t.TempDir()
	ws := workspace{
		config:    filepath.Join(dir, "config.yaml"),
		manual:    filepath.Join(dir, "manual"),
		bookmarks: filepath.Join(dir, "marks.json"),
	}
	write(t, ws.config, `
storage:
  path: ./db
embedding:
  backend: hash
  model_name: hash-test
  dimensions: 384
`)
	if err := os.MkdirAll(ws.manual, 0755); err != nil {
		t.Fatal(err)
	}
	write(t, filepath.Join(ws.manual, "guide.html"), `<html><body>
<h1 id="airway">Airway</h1>
<p>Tilt the head back and lift the chin.</p>
<h1 id="bleeding">Bleeding</h1>
<p>Apply direct pressure to the wound.</p>
</body></html>`)
	write(t, ws.bookmarks, `[
  {"bookmark_id": "airway", "title": "Airway management", "page_number": 3},
  {"bookmark_id": "bleeding", "title": "Bleeding control", "page_number": 9}
]`)
	return ws
}

func runCmd(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_indexSearchStatsTocClear(t *testing.T) {
	ws := newWorkspace(t)

	code, out, errOut := runCmd(t, "index", "--config", ws.config, "--bookmarks", ws.bookmarks, ws.manual)
	if code != 0 {
		t.Fatalf("index exit=%d stderr=%s", code, errOut)
	}
	if !strings.Contains(out, "Indexed 4 documents") {
		t.Errorf("index output=%q", out)
	}

	code, out, errOut = runCmd(t, "search", "--config", ws.config, "--output", "json", "--top-k", "1", "direct", "pressure", "wound")
	if code != 0 {
		t.Fatalf("search exit=%d stderr=%s", code, errOut)
	}
	var resp models.SearchResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("search output is not JSON: %v\n%s", err, out)
	}
	if len(resp.Hits) != 1 {
		t.Fatalf("hits=%+v", resp.Hits)
	}
	if hit := resp.Hits[0]; hit.Page != 9 || hit.Section != "Bleeding control" || !strings.Contains(hit.Text, "direct pressure") {
		t.Errorf("hit=%+v", hit)
	}

	code, out, _ = runCmd(t, "stats", "--config", ws.config, "--output", "json")
	if code != 0 {
		t.Fatalf("stats exit=%d", code)
	}
	var stats models.Stats
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.DocumentCount != 4 || stats.Dimension != 384 || stats.ModelName != "hash-test" {
		t.Errorf("stats=%+v", stats)
	}

	code, out, _ = runCmd(t, "toc", "--config", ws.config, "--find", "bleeding")
	if code != 0 || !strings.Contains(out, "p.9") || strings.Contains(out, "Airway") {
		t.Errorf("toc exit=%d output=%q", code, out)
	}

	code, out, _ = runCmd(t, "clear", "--config", ws.config)
	if code != 0 || !strings.Contains(out, "--yes") {
		t.Errorf("clear without --yes: exit=%d output=%q", code, out)
	}
	code, _, _ = runCmd(t, "search", "--config", ws.config, "airway")
	if code != 0 {
		t.Error("index should survive clear without --yes")
	}

	code, _, _ = runCmd(t, "clear", "--config", ws.config, "--yes")
	if code != 0 {
		t.Fatalf("clear exit=%d", code)
	}
	code, _, errOut = runCmd(t, "search", "--config", ws.config, "airway")
	if code != 1 || !strings.Contains(errOut, "no index") {
		t.Errorf("search after clear: exit=%d stderr=%q", code, errOut)
	}

	// Bookmarks survive clear.
	code, out, _ = runCmd(t, "toc", "--config", ws.config)
	if code != 0 || !strings.Contains(out, "Airway management") {
		t.Errorf("toc after clear: exit=%d output=%q", code, out)
	}
}

func TestRun_usageErrors(t *testing.T) {
	tests := []struct {
		args []string
		code int
	}{
		{nil, 1},
		{[]string{"frobnicate"}, 1},
		{[]string{"search"}, 2},
		{[]string{"search", "--output", "yaml", "x"}, 2},
		{[]string{"index"}, 2},
		{[]string{"index", "--no-such-flag", "x"}, 2},
		{[]string{"version"}, 0},
		{[]string{"help"}, 0},
	}
	for _, tt := range tests {
		if code, _, _ := runCmd(t, tt.args...); code != tt.code {
			t.Errorf("run(%v) = %d, want %d", tt.args, code, tt.code)
		}
	}
}

func TestBookmarkSource_load(t *testing.T) {
	ws := newWorkspace(t)
	marks, err := bookmarkSource{path: ws.bookmarks}.load()
	if err != nil {
		t.Fatal(err)
	}
	if len(marks) != 2 || marks[1].PageNumber != 9 {
		t.Errorf("marks=%+v", marks)
	}
	if _, err := (bookmarkSource{path: "marks.csv"}).load(); err == nil {
		t.Error("expected error for .csv bookmarks")
	}
	if marks, err := (bookmarkSource{}).load(); err != nil || marks != nil {
		t.Errorf("empty source = %v, %v", marks, err)
	}
}

func TestPrefixIDs(t *testing.T) {
	docs := []models.Document{{ID: "a"}, {ID: "b"}}
	if got := prefixIDs(docs, "x", false); got[0].ID != "a" {
		t.Errorf("disabled prefix changed ids: %v", got)
	}
	got := prefixIDs(docs, "x", true)
	if got[0].ID != "x/a" || got[1].ID != "x/b" {
		t.Errorf("prefixIDs = %v", got)
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(orig) })
}

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}
