package main

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hyperjump/shirabe/internal/bookmarks"
	"github.com/hyperjump/shirabe/internal/config"
	"github.com/hyperjump/shirabe/internal/embedding"
	"github.com/hyperjump/shirabe/internal/search"
	"github.com/hyperjump/shirabe/internal/storage"
	"github.com/hyperjump/shirabe/internal/vector"
)

const (
	backendDir    = "dir"
	backendSQLite = "sqlite"
	backendBundle = "bundle"
)

// Components holds initialized services.
type Components struct {
	Store     storage.Store
	Generator *embedding.Generator
	Engine    *search.Engine
	closers   []io.Closer
}

// Close releases the engine, the embedding model and the store.
func (c *Components) Close() error {
	var err error
	for i := len(c.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, c.closers[i].Close())
	}
	return err
}

// newStore builds the configured persistence backend. The returned closer may be nil.
func newStore(cfg *config.Config, logger *zap.Logger) (storage.Store, io.Closer, error) {
	switch cfg.Storage.Backend {
	case backendDir, "":
		store, err := storage.NewDirStore(cfg.Storage.Path,
			storage.WithVectorFormat(cfg.Storage.VectorFormat),
			storage.WithDirLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	case backendSQLite:
		store, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return store, store, nil
	case backendBundle:
		return storage.NewBundleStore(os.DirFS(cfg.Storage.Path), cfg.Storage.Path, logger), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend: %s (supported: dir, sqlite, bundle)", cfg.Storage.Backend)
	}
}

// bookmarkLoader reads the mapping from the bundle for bundle storage, and from
// storage.bookmarks_path otherwise.
func bookmarkLoader(cfg *config.Config, store storage.Store, logger *zap.Logger) search.BookmarkLoader {
	if b, ok := store.(*storage.BundleStore); ok {
		return func() *bookmarks.Mapping {
			return bookmarks.LoadFS(b.FS(), storage.BookmarksFile, logger)
		}
	}
	path := cfg.Storage.BookmarksPath
	return func() *bookmarks.Mapping {
		return bookmarks.LoadFile(path, logger)
	}
}

func newGenerator(cfg *config.Config, logger *zap.Logger) (*embedding.Generator, error) {
	ec := cfg.Embedding
	loader, err := embedding.NewLoader(embedding.Options{
		Backend:           embedding.Backend(ec.Backend),
		ModelName:         ec.ModelName,
		ModelPath:         ec.ModelPath,
		VocabPath:         ec.VocabPath,
		LibraryPath:       ec.LibraryPath,
		Dimensions:        ec.Dimensions,
		MaxTokens:         ec.MaxTokens,
		CacheSize:         ec.CacheSize,
		OllamaHost:        ec.OllamaHost,
		OpenAIModel:       ec.OpenAIModel,
		OpenAIKey:         ec.OpenAIAPIKey,
		RequestsPerSecond: ec.RequestsPerSecond,
	})
	if err != nil {
		return nil, err
	}
	name := ec.ModelName
	if embedding.Backend(ec.Backend) == embedding.BackendOpenAI && ec.OpenAIModel != "" {
		name = ec.OpenAIModel
	}
	return embedding.NewGenerator(name, loader, embedding.WithLogger(logger)), nil
}

// initializeComponents wires store, generator and engine from cfg. Nothing heavy is
// loaded here; the model loads on first use.
func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	metric, err := vector.ParseMetric(cfg.Search.Metric)
	if err != nil {
		return nil, err
	}
	policy, err := search.ParseEmbedErrorPolicy(cfg.Indexing.OnEmbedError)
	if err != nil {
		return nil, err
	}

	c := &Components{}
	store, closer, err := newStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	c.Store = store
	if closer != nil {
		c.closers = append(c.closers, closer)
	}

	gen, err := newGenerator(cfg, logger)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.Generator = gen
	c.closers = append(c.closers, gen)

	c.Engine = search.NewEngine(gen, store,
		search.WithLogger(logger),
		search.WithMetric(metric),
		search.WithBookmarks(bookmarkLoader(cfg, store, logger)),
		search.WithScoreOffset(cfg.Search.ScoreOffset),
		search.WithEmbedErrorPolicy(policy),
		search.WithDefaultTopK(cfg.Search.DefaultTopK),
		search.WithMaxTopK(cfg.Search.MaxTopK),
		search.WithSectionLabelLength(cfg.Search.SectionLabelLength),
	)
	c.closers = append(c.closers, c.Engine)

	logger.Debug("components initialized",
		zap.String("storage", store.Describe()),
		zap.String("embedding_backend", cfg.Embedding.Backend),
		zap.String("metric", string(metric)))
	return c, nil
}
