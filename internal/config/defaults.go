package config

import "path/filepath"

// Defaults for a fresh install.
const (
	DefaultModelName   = "all-MiniLM-L6-v2"
	DefaultDimensions  = 384
	DefaultStoragePath = "~/.shirabe/vector_db"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "dir"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultStoragePath
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = joinUnexpanded(cfg.Storage.Path, "index.sqlite")
	}
	if cfg.Storage.BookmarksPath == "" {
		cfg.Storage.BookmarksPath = joinUnexpanded(cfg.Storage.Path, "title_page.json")
	}
	if cfg.Storage.VectorFormat == "" {
		cfg.Storage.VectorFormat = "json"
	}
	if cfg.Embedding.Backend == "" {
		cfg.Embedding.Backend = "onnx"
	}
	if cfg.Embedding.ModelName == "" {
		cfg.Embedding.ModelName = DefaultModelName
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "~/.shirabe/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.VocabPath == "" {
		cfg.Embedding.VocabPath = "~/.shirabe/models/vocab.txt"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = DefaultDimensions
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.OllamaHost == "" {
		cfg.Embedding.OllamaHost = "http://localhost:11434"
	}
	if cfg.Search.Metric == "" {
		cfg.Search.Metric = "cosine"
	}
	if cfg.Search.DefaultTopK == 0 {
		cfg.Search.DefaultTopK = 5
	}
	if cfg.Search.MaxTopK == 0 {
		cfg.Search.MaxTopK = 100
	}
	if cfg.Search.SectionLabelLength == 0 {
		cfg.Search.SectionLabelLength = 100
	}
	if cfg.Search.ScoreOffset == 0 {
		cfg.Search.ScoreOffset = 1.0
	}
	if cfg.Indexing.OnEmbedError == "" {
		cfg.Indexing.OnEmbedError = "abort"
	}
	if cfg.Indexing.Extensions == nil {
		cfg.Indexing.Extensions = []string{".html", ".htm", ".pdf", ".txt", ".md", ".json", ".xlsx"}
	}
	if cfg.Indexing.HTMLText == "" {
		cfg.Indexing.HTMLText = "plain"
	}
	if cfg.Indexing.ChunkSize == 0 {
		cfg.Indexing.ChunkSize = 120
	}
	if cfg.Indexing.ChunkOverlap == 0 {
		cfg.Indexing.ChunkOverlap = 20
	}
	if cfg.Watch.DebounceMS == 0 {
		cfg.Watch.DebounceMS = 500
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}

// joinUnexpanded joins paths while keeping a leading "./" or "~/" so expandPath
// still resolves the result the same way as its base.
func joinUnexpanded(base, name string) string {
	if base == "." {
		return "./" + name
	}
	joined := filepath.Join(base, name)
	for _, prefix := range []string{"./", "~/"} {
		if len(base) >= 2 && base[:2] == prefix && (len(joined) < 2 || joined[:2] != prefix) {
			return prefix + joined
		}
	}
	return joined
}
