package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  path: "./db"
search:
  metric: l2
  default_top_k: 3
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Server.Addr() != "127.0.0.1:9000" {
		t.Errorf("Addr=%s", cfg.Server.Addr())
	}
	if cfg.Search.Metric != "l2" || cfg.Search.DefaultTopK != 3 {
		t.Errorf("unexpected search config: %+v", cfg.Search)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_defaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("debug: true\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
	if cfg.Embedding.ModelName != DefaultModelName || cfg.Embedding.Dimensions != 384 {
		t.Errorf("embedding defaults: %+v", cfg.Embedding)
	}
	if cfg.Search.Metric != "cosine" || cfg.Search.DefaultTopK != 5 || cfg.Search.ScoreOffset != 1.0 {
		t.Errorf("search defaults: %+v", cfg.Search)
	}
	if cfg.Indexing.OnEmbedError != "abort" {
		t.Errorf("OnEmbedError=%s, want abort", cfg.Indexing.OnEmbedError)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	wantPath := filepath.Join(home, ".shirabe", "vector_db")
	if cfg.Storage.Path != wantPath {
		t.Errorf("Storage.Path=%s, want %s", cfg.Storage.Path, wantPath)
	}
	if cfg.Storage.BookmarksPath != filepath.Join(wantPath, "title_page.json") {
		t.Errorf("BookmarksPath=%s", cfg.Storage.BookmarksPath)
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  path: "./data/vector_db"
watch:
  directories: ["./dev/sample"]
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	wantDB := filepath.Join(dir, "data", "vector_db")
	if cfg.Storage.Path != wantDB {
		t.Errorf("Storage.Path=%s, want %s", cfg.Storage.Path, wantDB)
	}
	if cfg.Storage.BookmarksPath != filepath.Join(wantDB, "title_page.json") {
		t.Errorf("BookmarksPath=%s", cfg.Storage.BookmarksPath)
	}
	if cfg.Storage.DatabasePath != filepath.Join(wantDB, "index.sqlite") {
		t.Errorf("DatabasePath=%s", cfg.Storage.DatabasePath)
	}
	wantWatch := filepath.Join(dir, "dev", "sample")
	if len(cfg.Watch.Directories) != 1 || cfg.Watch.Directories[0] != wantWatch {
		t.Errorf("Watch.Directories=%v, want [%s]", cfg.Watch.Directories, wantWatch)
	}
	if !cfg.Watch.RecursiveOrDefault() {
		t.Error("recursive should default to true")
	}
}

func TestLoad_toml(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[storage]
backend = "sqlite"
path = "./db"

[embedding]
backend = "hash"
dimensions = 64
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.Backend != "sqlite" || cfg.Embedding.Backend != "hash" || cfg.Embedding.Dimensions != 64 {
		t.Errorf("unexpected config: %+v %+v", cfg.Storage, cfg.Embedding)
	}
}

func TestLoad_envOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("embedding:\n  model_name: from-file\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvModel, "from-env")
	t.Setenv(EnvDBPath, filepath.Join(dir, "envdb"))
	t.Setenv(EnvEmbeddingBackend, "ollama")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Embedding.ModelName != "from-env" {
		t.Errorf("ModelName=%s, want from-env", cfg.Embedding.ModelName)
	}
	if cfg.Storage.Path != filepath.Join(dir, "envdb") {
		t.Errorf("Storage.Path=%s", cfg.Storage.Path)
	}
	if cfg.Embedding.Backend != "ollama" {
		t.Errorf("Backend=%s", cfg.Embedding.Backend)
	}
}

func TestLoad_dotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("debug: false\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("OPENAI_API_KEY=sk-from-dotenv\n"), 0600); err != nil {
		t.Fatal(err)
	}
	// register restore, then make sure the key is really unset
	t.Setenv(EnvOpenAIKey, "")
	os.Unsetenv(EnvOpenAIKey)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Embedding.OpenAIAPIKey != "sk-from-dotenv" {
		t.Errorf("OpenAIAPIKey=%q", cfg.Embedding.OpenAIAPIKey)
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"out.yaml", "out.toml"} {
		path := filepath.Join(dir, name)
		cfg := &Config{Server: ServerConfig{Host: "0.0.0.0", Port: 7000}}
		cfg.Search.Metric = "l2"
		recursive := false
		cfg.Watch.Recursive = &recursive
		if err := Save(path, cfg); err != nil {
			t.Fatal(err)
		}
		loaded, err := Load(path)
		if err != nil {
			t.Fatal(err)
		}
		if loaded.Server.Port != 7000 || loaded.Search.Metric != "l2" {
			t.Errorf("%s: round trip lost values: %+v %+v", name, loaded.Server, loaded.Search)
		}
	}
}
