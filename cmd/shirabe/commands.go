package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/shirabe/internal/bookmarks"
	"github.com/hyperjump/shirabe/internal/cli"
	"github.com/hyperjump/shirabe/internal/config"
	"github.com/hyperjump/shirabe/internal/corpus"
	"github.com/hyperjump/shirabe/internal/mcpserver"
	"github.com/hyperjump/shirabe/internal/models"
	"github.com/hyperjump/shirabe/internal/search"
	"github.com/hyperjump/shirabe/internal/server"
	"github.com/hyperjump/shirabe/internal/storage"
	"github.com/hyperjump/shirabe/internal/watcher"
)

const defaultTOCLimit = 20

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(argsReorder(args)); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runIndex(args []string, stdout io.Writer) error {
	fs, common := newFlagSet("index")
	watch := fs.Bool("watch", false, "rebuild on file changes")
	onError := fs.String("on-error", "", "abort or skip documents that fail to embed")
	bookmarkFile := fs.String("bookmarks", "", "bookmark mapping to install (.json or .xlsx)")
	sheet := fs.String("sheet", "", "sheet of an .xlsx bookmark file")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: index needs exactly one path", errUsage)
	}
	root := fs.Arg(0)

	cfg, logger, err := common.setup()
	if err != nil {
		return err
	}
	defer logger.Sync()
	if *onError != "" {
		cfg.Indexing.OnEmbedError = *onError
	}
	if cfg.Storage.Backend == backendBundle {
		return errors.New("the bundle storage backend is read-only; index into a dir or sqlite store")
	}

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	ctx, cancel := signalContext()
	defer cancel()

	bm := bookmarkSource{path: *bookmarkFile, sheet: *sheet}
	report, err := indexPath(ctx, cfg, components.Engine, root, bm, logger)
	if err != nil {
		return err
	}
	if err := cli.WriteIndexReport(stdout, report, cli.OutputText); err != nil {
		return err
	}
	if !*watch {
		return nil
	}

	w := watcher.NewWatcher([]string{root}, indexExtensions(cfg),
		func(ctx context.Context, changed []string) {
			logger.Info("files changed, rebuilding index", zap.Int("changed", len(changed)))
			report, err := indexPath(ctx, cfg, components.Engine, root, bm, logger)
			if err != nil {
				logger.Error("rebuild failed, previous index kept", zap.Error(err))
				return
			}
			_ = cli.WriteIndexReport(stdout, report, cli.OutputText)
		},
		watchOptions(cfg, logger)...,
	)
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	fmt.Fprintf(stdout, "Watching %s for changes (Ctrl+C to stop)\n", root)
	<-ctx.Done()
	w.Stop()
	return nil
}

// bookmarkSource is an external bookmark mapping given on the command line.
type bookmarkSource struct {
	path  string
	sheet string
}

func (b bookmarkSource) load() ([]models.Bookmark, error) {
	if b.path == "" {
		return nil, nil
	}
	switch strings.ToLower(filepath.Ext(b.path)) {
	case ".xlsx":
		return bookmarks.LoadXLSX(b.path, b.sheet)
	case ".json":
		data, err := os.ReadFile(b.path)
		if err != nil {
			return nil, err
		}
		m, err := bookmarks.Parse(data)
		if err != nil {
			return nil, err
		}
		return m.Entries(), nil
	default:
		return nil, fmt.Errorf("unsupported bookmark file %s (use .json or .xlsx)", b.path)
	}
}

// indexPath reads the corpus at root, installs its bookmarks and rebuilds the index.
func indexPath(ctx context.Context, cfg *config.Config, engine *search.Engine, root string, bm bookmarkSource, logger *zap.Logger) (*search.IndexReport, error) {
	res, err := corpus.LoadPath(ctx, root, corpus.Options{
		Extensions:   cfg.Indexing.Extensions,
		ChunkSize:    cfg.Indexing.ChunkSize,
		ChunkOverlap: cfg.Indexing.ChunkOverlap,
		HTMLText:     cfg.Indexing.HTMLText,
		Lenient:      cfg.Indexing.Lenient,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		logger.Warn("some files were skipped", zap.Int("failed", len(res.Errors)), zap.Error(res.Err()))
	}

	extra, err := bm.load()
	if err != nil {
		return nil, fmt.Errorf("failed to load bookmarks: %w", err)
	}
	// Corpus page bookmarks first so an explicit mapping wins on the same id.
	marks := append(append([]models.Bookmark(nil), res.Bookmarks...), extra...)
	if len(marks) > 0 {
		if err := bookmarks.WriteFile(cfg.Storage.BookmarksPath, bookmarks.New(marks).Entries()); err != nil {
			return nil, fmt.Errorf("failed to write bookmarks: %w", err)
		}
		logger.Info("bookmark mapping written", zap.String("path", cfg.Storage.BookmarksPath), zap.Int("count", len(marks)))
	}

	return engine.IndexDocuments(ctx, res.Documents)
}

func indexExtensions(cfg *config.Config) []string {
	if len(cfg.Indexing.Extensions) > 0 {
		return cfg.Indexing.Extensions
	}
	return corpus.DefaultExtensions
}

func watchOptions(cfg *config.Config, logger *zap.Logger) []watcher.WatcherOption {
	opts := []watcher.WatcherOption{
		watcher.WithLogger(logger),
		watcher.WithRecursive(cfg.Watch.RecursiveOrDefault()),
		watcher.WithIgnore(cfg.Storage.Path, cfg.Storage.DatabasePath, cfg.Storage.BookmarksPath),
	}
	if cfg.Watch.DebounceMS > 0 {
		opts = append(opts, watcher.WithDebounce(time.Duration(cfg.Watch.DebounceMS)*time.Millisecond))
	}
	return opts
}

func runSearch(args []string, stdout io.Writer) error {
	fs, common := newFlagSet("search")
	topK := fs.Int("top-k", 0, "number of results (0 uses the configured default)")
	output := fs.String("output", "text", "output format: text, compact or json")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	format, err := cli.ParseOutputFormat(*output)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	query := buildSearchQuery(fs.Args())
	if query == "" {
		return fmt.Errorf("%w: search needs a query", errUsage)
	}

	cfg, logger, err := common.setup()
	if err != nil {
		return err
	}
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	ctx, cancel := signalContext()
	defer cancel()
	response, err := components.Engine.Query(ctx, models.SearchQuery{Query: query, TopK: *topK})
	if err != nil {
		return err
	}
	return cli.WriteSearchResponse(stdout, response, format)
}

type diskUser interface {
	DiskUsage() (int64, error)
}

func runStats(args []string, stdout io.Writer) error {
	fs, common := newFlagSet("stats")
	output := fs.String("output", "text", "output format: text or json")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	format, err := cli.ParseOutputFormat(*output)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	cfg, logger, err := common.setup()
	if err != nil {
		return err
	}
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	stats, err := components.Engine.Stats(context.Background())
	if err != nil {
		return err
	}
	if du, ok := components.Store.(diskUser); ok {
		if n, err := du.DiskUsage(); err == nil {
			stats.DiskBytes = n
		} else {
			logger.Debug("disk usage unavailable", zap.Error(err))
		}
	}
	return cli.WriteStats(stdout, stats, format)
}

func runTOC(args []string, stdout io.Writer) error {
	fs, common := newFlagSet("toc")
	find := fs.String("find", "", "keywords to look up in section titles")
	fuzzy := fs.Bool("fuzzy", false, "tolerate misspellings")
	limit := fs.Int("limit", defaultTOCLimit, "maximum matches for --find")
	output := fs.String("output", "text", "output format: text or json")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	format, err := cli.ParseOutputFormat(*output)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	cfg, logger, err := common.setup()
	if err != nil {
		return err
	}
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	var marks []models.Bookmark
	if *find == "" {
		marks = components.Engine.Bookmarks()
	} else {
		marks, err = components.Engine.FindBookmarks(*find, *limit, *fuzzy)
		if err != nil {
			return err
		}
	}
	return cli.WriteBookmarks(stdout, marks, format)
}

func runClear(args []string, stdout io.Writer) error {
	fs, common := newFlagSet("clear")
	yes := fs.Bool("yes", false, "confirm deletion")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	cfg, logger, err := common.setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	var target string
	switch cfg.Storage.Backend {
	case backendDir, "":
		target = cfg.Storage.Path
	case backendSQLite:
		target = cfg.Storage.DatabasePath
	case backendBundle:
		return errors.New("the bundle storage backend is read-only")
	default:
		return fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}
	if !*yes {
		fmt.Fprintf(stdout, "This deletes the index at %s. Re-run with --yes to confirm.\n", target)
		return nil
	}

	if cfg.Storage.Backend == backendSQLite {
		for _, p := range []string{target, target + "-wal", target + "-shm"} {
			if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
		}
	} else {
		store, err := storage.NewDirStore(target)
		if err != nil {
			return err
		}
		if err := store.Clear(); err != nil {
			return err
		}
	}
	logger.Info("persisted index removed", zap.String("path", target))
	fmt.Fprintf(stdout, "Cleared index at %s\n", target)
	return nil
}

func runServe(args []string) error {
	fs, common := newFlagSet("serve")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	cfg, logger, err := common.setup()
	if err != nil {
		return err
	}
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if len(cfg.Watch.Directories) > 0 && cfg.Storage.Backend != backendBundle {
		w, err := watchDirectories(ctx, cfg, components.Engine, logger)
		if err != nil {
			return err
		}
		defer w.Stop()
	}

	srv := server.NewServer(components.Engine, &cfg.Server, logger)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}
	logger.Info("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Stop(shutdownCtx)
}

// watchDirectories keeps the index in sync with watch.directories while serving.
// Every batch of changes rebuilds the index from all directories.
func watchDirectories(ctx context.Context, cfg *config.Config, engine *search.Engine, logger *zap.Logger) (*watcher.Watcher, error) {
	dirs := cfg.Watch.Directories
	rebuild := func(ctx context.Context, _ []string) {
		var docs []models.Document
		for _, dir := range dirs {
			res, err := corpus.LoadPath(ctx, dir, corpus.Options{
				Extensions:   cfg.Indexing.Extensions,
				ChunkSize:    cfg.Indexing.ChunkSize,
				ChunkOverlap: cfg.Indexing.ChunkOverlap,
				HTMLText:     cfg.Indexing.HTMLText,
				Lenient:      true,
				Logger:       logger,
			})
			if err != nil {
				logger.Error("rebuild failed, previous index kept", zap.String("dir", dir), zap.Error(err))
				return
			}
			docs = append(docs, prefixIDs(res.Documents, filepath.Base(dir), len(dirs) > 1)...)
		}
		report, err := engine.IndexDocuments(ctx, docs)
		if err != nil {
			logger.Error("rebuild failed, previous index kept", zap.Error(err))
			return
		}
		logger.Info("index rebuilt", zap.Int("indexed", report.Indexed), zap.Int("skipped", len(report.Skipped)))
	}
	w := watcher.NewWatcher(dirs, indexExtensions(cfg), rebuild, watchOptions(cfg, logger)...)
	if err := w.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start watcher: %w", err)
	}
	logger.Info("watching directories", zap.Strings("directories", w.Directories()))
	return w, nil
}

// prefixIDs keeps ids unique when several watch directories are merged.
func prefixIDs(docs []models.Document, prefix string, enabled bool) []models.Document {
	if !enabled {
		return docs
	}
	for i := range docs {
		docs[i].ID = prefix + "/" + docs[i].ID
	}
	return docs
}

func runMCP(args []string) error {
	fs, common := newFlagSet("mcp")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	cfg, logger, err := common.setup()
	if err != nil {
		return err
	}
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	ctx, cancel := signalContext()
	defer cancel()
	logger.Info("mcp server ready, waiting for requests")
	srv := mcpserver.NewServer(mcpserver.NewHandlers(components.Engine, logger), version)
	return mcpserver.Run(ctx, srv)
}
