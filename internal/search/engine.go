// Package search ties the embedding generator, vector index, document store and
// bookmark mapping together into a semantic search engine.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/shirabe/internal/bookmarks"
	"github.com/hyperjump/shirabe/internal/embedding"
	"github.com/hyperjump/shirabe/internal/models"
	"github.com/hyperjump/shirabe/internal/storage"
	"github.com/hyperjump/shirabe/internal/vector"
)

// ErrNoIndex is returned by Search when nothing is indexed in memory and no
// persisted index exists. It matches storage.ErrNoIndex with errors.Is.
var ErrNoIndex = fmt.Errorf("no index found, run indexing first: %w", storage.ErrNoIndex)

// embedBatchSize is the number of documents sent per EmbedBatch call.
const embedBatchSize = 32

// EmbedErrorPolicy decides what IndexDocuments does when a document fails to embed.
type EmbedErrorPolicy string

const (
	// PolicyAbort stops the run and keeps the previous index.
	PolicyAbort EmbedErrorPolicy = "abort"
	// PolicySkip logs the document id, records it in the report and continues.
	PolicySkip EmbedErrorPolicy = "skip"
)

// ParseEmbedErrorPolicy accepts "abort" (also "") and "skip".
func ParseEmbedErrorPolicy(s string) (EmbedErrorPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(PolicyAbort):
		return PolicyAbort, nil
	case string(PolicySkip):
		return PolicySkip, nil
	default:
		return "", fmt.Errorf("unknown embed error policy: %s (supported: abort, skip)", s)
	}
}

// BookmarkLoader supplies the bookmark mapping. It is called once, on first use.
type BookmarkLoader func() *bookmarks.Mapping

// SkippedDocument records a document left out of the index.
type SkippedDocument struct {
	ID  string `json:"id"`
	Err error  `json:"-"`
}

// IndexReport summarizes an IndexDocuments run.
type IndexReport struct {
	Indexed    int               `json:"indexed"`
	Skipped    []SkippedDocument `json:"skipped,omitempty"`
	Duplicates int               `json:"duplicates"`
	Dimension  int               `json:"dimension"`
	Elapsed    time.Duration     `json:"elapsed"`
}

// Engine runs semantic search over one corpus.
//
// State: uninitialized until Initialize (or the first Search) loads the model and
// bookmarks; indexed once IndexDocuments runs or a persisted index is loaded;
// ClearIndex drops the index but keeps the model and bookmarks.
type Engine struct {
	gen         *embedding.Generator
	store       storage.Store
	logger      *zap.Logger
	metric      vector.Metric
	scoreOffset float64
	policy      EmbedErrorPolicy
	defaultTopK int
	maxTopK     int
	labelLen    int
	loadMarks   BookmarkLoader

	mu          sync.RWMutex
	initialized bool
	index       vector.Index
	docs        *DocumentStore
	meta        storage.Metadata
	marks       *bookmarks.Mapping

	titleMu sync.Mutex
	titles  *bookmarks.TitleIndex
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetric sets the metric used for newly built indexes. Default cosine.
func WithMetric(m vector.Metric) Option {
	return func(e *Engine) { e.metric = m }
}

// WithBookmarks sets the bookmark source.
func WithBookmarks(load BookmarkLoader) Option {
	return func(e *Engine) { e.loadMarks = load }
}

// WithScoreOffset sets the offset in score = 1/(offset+distance) for euclidean indexes.
func WithScoreOffset(offset float64) Option {
	return func(e *Engine) { e.scoreOffset = offset }
}

// WithEmbedErrorPolicy sets the bulk indexing failure policy. Default abort.
func WithEmbedErrorPolicy(p EmbedErrorPolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithDefaultTopK sets the result count used when Search is called with topK <= 0.
func WithDefaultTopK(k int) Option {
	return func(e *Engine) {
		if k > 0 {
			e.defaultTopK = k
		}
	}
}

// WithMaxTopK caps the result count accepted by ProcessQuery. Zero means no cap.
func WithMaxTopK(k int) Option {
	return func(e *Engine) { e.maxTopK = k }
}

// WithSectionLabelLength sets how much passage text labels a hit without a title.
func WithSectionLabelLength(n int) Option {
	return func(e *Engine) { e.labelLen = n }
}

// NewEngine creates an engine. Nothing is loaded until Initialize or Search.
func NewEngine(gen *embedding.Generator, store storage.Store, opts ...Option) *Engine {
	e := &Engine{
		gen:         gen,
		store:       store,
		logger:      zap.NewNop(),
		metric:      vector.Cosine,
		scoreOffset: vector.DefaultScoreOffset,
		policy:      PolicyAbort,
		defaultTopK: models.DefaultTopK,
		labelLen:    DefaultSectionLabelLength,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Initialize loads the embedding model and the bookmark mapping. It is idempotent;
// after a failure a later call retries.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initLocked(ctx)
}

func (e *Engine) initLocked(ctx context.Context) error {
	if e.initialized {
		return nil
	}
	if err := e.gen.Initialize(ctx); err != nil {
		return err
	}
	e.bookmarksLocked()
	e.initialized = true
	e.logger.Info("search engine initialized",
		zap.String("model", e.gen.ModelName()),
		zap.Int("bookmarks", e.marks.Len()))
	return nil
}

func (e *Engine) bookmarksLocked() *bookmarks.Mapping {
	if e.marks == nil {
		if e.loadMarks != nil {
			e.marks = e.loadMarks()
		}
		if e.marks == nil {
			e.marks = bookmarks.New(nil)
		}
	}
	return e.marks
}

// IndexDocuments embeds docs into a fresh index, persists it and replaces the current
// index. Reindexing is always a full rebuild. A repeated id keeps the position of its
// first occurrence and the content of its last. On error the previous index stays live.
func (e *Engine) IndexDocuments(ctx context.Context, docs []models.Document) (*IndexReport, error) {
	start := time.Now()
	if len(docs) == 0 {
		e.logger.Info("no documents to index")
		return &IndexReport{}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.initLocked(ctx); err != nil {
		return nil, err
	}

	unique, dups := dedupe(docs)
	if dups > 0 {
		e.logger.Warn("duplicate document ids, keeping last", zap.Int("duplicates", dups))
	}

	idx, err := vector.NewIndex(string(vector.KindFlat), e.metric)
	if err != nil {
		return nil, err
	}
	store := NewDocumentStore()
	report := &IndexReport{Duplicates: dups}

	for from := 0; from < len(unique); from += embedBatchSize {
		batch := unique[from:min(from+embedBatchSize, len(unique))]
		vecs, skipped, err := e.embedBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		report.Skipped = append(report.Skipped, skipped...)
		for i, doc := range batch {
			if vecs[i] == nil {
				continue
			}
			if err := idx.Add(doc.ID, vecs[i]); err != nil {
				return nil, fmt.Errorf("add document %q: %w", doc.ID, err)
			}
			store.Put(doc)
		}
		e.logger.Debug("indexing progress", zap.Int("done", from+len(batch)), zap.Int("total", len(unique)))
	}

	dim := idx.Dimension()
	if dim == 0 {
		dim = e.gen.Dimensions()
	}
	meta := storage.Metadata{
		Dimension: dim,
		Space:     string(e.metric),
		ModelName: e.gen.ModelName(),
	}
	if err := e.store.Save(ctx, &storage.Snapshot{
		Metadata:  meta,
		Documents: pairs(store),
		Vectors:   idx.Entries(),
	}); err != nil {
		return nil, fmt.Errorf("persist index: %w", err)
	}
	meta.NumElements = store.Len()

	e.index, e.docs, e.meta = idx, store, meta
	report.Indexed = store.Len()
	report.Dimension = dim
	report.Elapsed = time.Since(start)
	e.logger.Info("index built",
		zap.Int("documents", report.Indexed),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("dimension", dim),
		zap.String("space", string(e.metric)),
		zap.Duration("elapsed", report.Elapsed))
	return report, nil
}

// embedBatch embeds docs with one EmbedBatch call. When the batch fails, each
// document is embedded on its own so the failure can be pinned to an id and the
// embed error policy applied. Skipped documents get a nil vector.
func (e *Engine) embedBatch(ctx context.Context, docs []models.Document) ([][]float32, []SkippedDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Text
	}
	vecs, err := e.gen.EmbedBatch(ctx, texts)
	if err == nil && len(vecs) == len(docs) {
		return vecs, nil, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, nil, ctxErr
	}
	e.logger.Debug("batch embed failed, embedding documents one by one",
		zap.Int("batch", len(docs)), zap.Error(err))

	vecs = make([][]float32, len(docs))
	var skipped []SkippedDocument
	for i, doc := range docs {
		vec, err := e.gen.Embed(ctx, doc.Text)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, nil, ctxErr
			}
			if e.policy == PolicySkip {
				e.logger.Warn("skipping document that failed to embed",
					zap.String("doc_id", doc.ID), zap.Error(err))
				skipped = append(skipped, SkippedDocument{ID: doc.ID, Err: err})
				continue
			}
			return nil, nil, fmt.Errorf("embed document %q: %w", doc.ID, err)
		}
		vecs[i] = vec
	}
	return vecs, skipped, nil
}

// Search returns up to topK results for query, best first. topK <= 0 uses the default.
// Search initializes the engine and loads the persisted index on first use, and
// returns ErrNoIndex when there is nothing to search.
func (e *Engine) Search(ctx context.Context, query string, topK int) ([]models.SearchResult, error) {
	idx, docs, marks, err := e.ensureIndexed(ctx)
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = e.defaultTopK
	}
	k := topK
	if n := idx.Len(); n < k {
		k = n
	}
	if k == 0 {
		return []models.SearchResult{}, nil
	}

	vec, err := e.gen.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	neighbors, err := idx.QueryWithDistances(vec, k)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	metric := idx.Metric()
	results := make([]models.SearchResult, 0, len(neighbors))
	for _, n := range neighbors {
		doc, ok := docs.Get(n.ID)
		if !ok {
			e.logger.Debug("vector hit has no document, skipping", zap.String("doc_id", n.ID))
			continue
		}
		results = append(results, e.toResult(doc, n, metric, marks))
	}
	return results, nil
}

func (e *Engine) toResult(doc models.Document, n vector.Neighbor, metric vector.Metric, marks *bookmarks.Mapping) models.SearchResult {
	r := models.SearchResult{
		ID:       doc.ID,
		Text:     doc.Text,
		Distance: n.Distance,
		Score:    vector.Score(metric, n.Distance, e.scoreOffset),
		Metadata: models.ResultMetadata{
			Source:    doc.Source,
			NodeIndex: doc.NodeIndex,
			XPath:     doc.XPath,
			TagName:   doc.TagName,
			Bookmark:  doc.Bookmark,
		},
	}
	if b, ok := marks.Lookup(doc.BookmarkID()); ok {
		title, page := b.Title, b.PageNumber
		r.Metadata.Title = &title
		r.Metadata.PageNumber = &page
	}
	return r
}

// ensureIndexed returns the live index state, initializing and loading as needed.
// The returned index and store are never mutated afterwards: IndexDocuments and
// ClearIndex replace them rather than change them.
func (e *Engine) ensureIndexed(ctx context.Context) (vector.Index, *DocumentStore, *bookmarks.Mapping, error) {
	e.mu.RLock()
	if e.initialized && e.index != nil {
		idx, docs, marks := e.index, e.docs, e.marks
		e.mu.RUnlock()
		return idx, docs, marks, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.initLocked(ctx); err != nil {
		return nil, nil, nil, err
	}
	if e.index == nil {
		if err := e.loadLocked(ctx); err != nil {
			return nil, nil, nil, err
		}
	}
	return e.index, e.docs, e.marks, nil
}

// Load reads the persisted index into memory, replacing any loaded index.
func (e *Engine) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadLocked(ctx)
}

func (e *Engine) loadLocked(ctx context.Context) error {
	snap, err := e.store.Load(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNoIndex) {
			return fmt.Errorf("%w (%s)", ErrNoIndex, e.store.Describe())
		}
		return fmt.Errorf("load index: %w", err)
	}
	if snap.Metadata.ModelName != "" && snap.Metadata.ModelName != e.gen.ModelName() {
		e.logger.Warn("index model mismatch",
			zap.String("index_model", snap.Metadata.ModelName),
			zap.String("configured_model", e.gen.ModelName()))
	}
	metric, err := vector.ParseMetric(snap.Metadata.Space)
	if err != nil {
		return fmt.Errorf("load index: %w", err)
	}
	if metric != e.metric {
		e.logger.Info("persisted index uses a different metric than configured",
			zap.String("index_space", string(metric)),
			zap.String("configured_space", string(e.metric)))
	}
	idx, err := vector.FromEntries(metric, snap.Vectors)
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrCorrupt, err)
	}
	docs := NewDocumentStore()
	for _, p := range snap.Documents {
		doc := p.Doc
		doc.ID = p.ID
		docs.Put(doc)
	}
	e.index, e.docs, e.meta = idx, docs, snap.Metadata
	e.logger.Info("index loaded",
		zap.String("from", e.store.Describe()),
		zap.Int("documents", docs.Len()),
		zap.Int("dimension", idx.Dimension()),
		zap.String("space", string(metric)),
		zap.String("generation", snap.Metadata.Generation))
	return nil
}

// Stats describes the loaded index, falling back to persisted metadata when nothing
// is loaded yet.
func (e *Engine) Stats(ctx context.Context) (models.Stats, error) {
	e.mu.RLock()
	idx, docs, meta := e.index, e.docs, e.meta
	e.mu.RUnlock()

	s := models.Stats{
		ModelName: e.gen.ModelName(),
		DBPath:    e.store.Describe(),
		Dimension: e.gen.Dimensions(),
		Space:     string(e.metric),
	}
	if idx != nil {
		s.Loaded = true
		s.DocumentCount = docs.Len()
		s.Dimension = idx.Dimension()
		s.Space = string(idx.Metric())
		if meta.ModelName != "" {
			s.ModelName = meta.ModelName
		}
		return s, nil
	}

	persisted, err := e.store.ReadMetadata(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNoIndex) {
			return s, nil
		}
		return s, fmt.Errorf("read index metadata: %w", err)
	}
	s.DocumentCount = persisted.NumElements
	if persisted.Dimension > 0 {
		s.Dimension = persisted.Dimension
	}
	if persisted.ModelName != "" {
		s.ModelName = persisted.ModelName
	}
	if persisted.Space != "" {
		s.Space = persisted.Space
	}
	return s, nil
}

// ClearIndex drops the in-memory index and documents. The model, the bookmark
// mapping and any persisted files are left alone.
func (e *Engine) ClearIndex() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.index, e.docs, e.meta = nil, nil, storage.Metadata{}
	e.logger.Info("in-memory index cleared")
}

// Bookmarks returns the bookmark mapping ordered by page, for a table of contents.
// It does not load the embedding model.
func (e *Engine) Bookmarks() []models.Bookmark {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bookmarksLocked().Sorted()
}

// FindBookmarks searches bookmark titles by keyword.
func (e *Engine) FindBookmarks(query string, limit int, fuzzy bool) ([]models.Bookmark, error) {
	e.titleMu.Lock()
	defer e.titleMu.Unlock()
	if e.titles == nil {
		e.mu.Lock()
		marks := e.bookmarksLocked()
		e.mu.Unlock()
		titles, err := bookmarks.NewTitleIndex(marks)
		if err != nil {
			return nil, err
		}
		e.titles = titles
	}
	return e.titles.Find(query, limit, fuzzy)
}

// Close releases the title index. The generator is owned by the caller.
func (e *Engine) Close() error {
	e.titleMu.Lock()
	defer e.titleMu.Unlock()
	if e.titles == nil {
		return nil
	}
	err := e.titles.Close()
	e.titles = nil
	return err
}

func dedupe(docs []models.Document) ([]models.Document, int) {
	pos := make(map[string]int, len(docs))
	out := make([]models.Document, 0, len(docs))
	dups := 0
	for _, d := range docs {
		if i, ok := pos[d.ID]; ok {
			out[i] = d
			dups++
			continue
		}
		pos[d.ID] = len(out)
		out = append(out, d)
	}
	return out, dups
}

func pairs(s *DocumentStore) []storage.DocumentPair {
	ordered := s.Ordered()
	out := make([]storage.DocumentPair, 0, len(ordered))
	for _, d := range ordered {
		out = append(out, storage.DocumentPair{ID: d.ID, Doc: d})
	}
	return out
}
