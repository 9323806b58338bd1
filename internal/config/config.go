// Package config provides configuration loading and structs for shirabe.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvDBPath           = "SHIRABE_DB_PATH"
	EnvModel            = "SHIRABE_MODEL"
	EnvEmbeddingBackend = "SHIRABE_EMBEDDING_BACKEND"
	EnvOllamaHost       = "OLLAMA_HOST"
	EnvOpenAIKey        = "OPENAI_API_KEY"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug" toml:"debug"`
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Storage   StorageConfig   `yaml:"storage" toml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding" toml:"embedding"`
	Search    SearchConfig    `yaml:"search" toml:"search"`
	Indexing  IndexingConfig  `yaml:"indexing" toml:"indexing"`
	Watch     WatchConfig     `yaml:"watch" toml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host" toml:"host"`
	Port int    `yaml:"port" toml:"port"`
}

// StorageConfig selects where the index lives.
type StorageConfig struct {
	// Backend is dir (default), sqlite or bundle.
	Backend       string `yaml:"backend" toml:"backend"`
	Path          string `yaml:"path" toml:"path"`
	DatabasePath  string `yaml:"database_path" toml:"database_path"`
	BookmarksPath string `yaml:"bookmarks_path" toml:"bookmarks_path"`
	// VectorFormat is json (index.dat, default) or binary (index.bin).
	VectorFormat string `yaml:"vector_format" toml:"vector_format"`
}

// EmbeddingConfig selects and tunes the embedding backend.
type EmbeddingConfig struct {
	// Backend is onnx (default), ollama, openai or hash.
	Backend           string  `yaml:"backend" toml:"backend"`
	ModelName         string  `yaml:"model_name" toml:"model_name"`
	ModelPath         string  `yaml:"model_path" toml:"model_path"`
	VocabPath         string  `yaml:"vocab_path" toml:"vocab_path"`
	LibraryPath       string  `yaml:"library_path" toml:"library_path"`
	Dimensions        int     `yaml:"dimensions" toml:"dimensions"`
	MaxTokens         int     `yaml:"max_tokens" toml:"max_tokens"`
	CacheSize         int     `yaml:"cache_size" toml:"cache_size"`
	OllamaHost        string  `yaml:"ollama_host" toml:"ollama_host"`
	OpenAIModel       string  `yaml:"openai_model" toml:"openai_model"`
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
	// OpenAIAPIKey is only read from the environment.
	OpenAIAPIKey string `yaml:"-" toml:"-"`
}

// SearchConfig holds query settings.
type SearchConfig struct {
	// Metric is cosine (default) or l2.
	Metric             string  `yaml:"metric" toml:"metric"`
	DefaultTopK        int     `yaml:"default_top_k" toml:"default_top_k"`
	MaxTopK            int     `yaml:"max_top_k" toml:"max_top_k"`
	SectionLabelLength int     `yaml:"section_label_length" toml:"section_label_length"`
	ScoreOffset        float64 `yaml:"score_offset" toml:"score_offset"`
}

// IndexingConfig holds settings for the offline indexing run.
type IndexingConfig struct {
	// OnEmbedError is abort (default) or skip.
	OnEmbedError string   `yaml:"on_embed_error" toml:"on_embed_error"`
	Extensions   []string `yaml:"extensions" toml:"extensions"`
	// HTMLText is plain (default) or markdown.
	HTMLText     string `yaml:"html_text" toml:"html_text"`
	ChunkSize    int    `yaml:"chunk_size" toml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap" toml:"chunk_overlap"`
	// Lenient skips unreadable files instead of failing the run.
	Lenient bool `yaml:"lenient" toml:"lenient"`
}

// WatchConfig holds settings for index --watch.
type WatchConfig struct {
	Directories []string `yaml:"directories" toml:"directories"`
	DebounceMS  int      `yaml:"debounce_ms" toml:"debounce_ms"`
	Recursive   *bool    `yaml:"recursive" toml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads and parses the config file at path (YAML, or TOML for a .toml file),
// loads a .env file next to it when present, applies defaults and environment
// overrides, and expands paths.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	configDir := filepath.Dir(path)
	if err := loadDotEnv(filepath.Join(configDir, ".env")); err != nil {
		return nil, err
	}
	finish(&cfg, configDir)
	return &cfg, nil
}

// Default returns the configuration used when no config file exists: defaults plus
// environment overrides, with a .env in the working directory honored.
func Default() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	cfg := &Config{}
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	finish(cfg, cwd)
	return cfg, nil
}

func finish(cfg *Config, configDir string) {
	ApplyEnv(cfg)
	ApplyDefaults(cfg)
	cfg.Storage.Path = expandPath(cfg.Storage.Path, configDir)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BookmarksPath = expandPath(cfg.Storage.BookmarksPath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	cfg.Embedding.VocabPath = expandPath(cfg.Embedding.VocabPath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}
}

// ApplyEnv copies environment overrides into cfg.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv(EnvModel); v != "" {
		cfg.Embedding.ModelName = v
	}
	if v := os.Getenv(EnvEmbeddingBackend); v != "" {
		cfg.Embedding.Backend = v
	}
	if v := os.Getenv(EnvOllamaHost); v != "" {
		cfg.Embedding.OllamaHost = v
	}
	if v := os.Getenv(EnvOpenAIKey); v != "" {
		cfg.Embedding.OpenAIAPIKey = v
	}
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load %s: %w", path, err)
}

// Save writes the config to path, as TOML for a .toml path and YAML otherwise.
func Save(path string, cfg *Config) error {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Addr returns host:port for the HTTP server.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. "~/" is the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	path = strings.TrimPrefix(path, "~/")
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
