// Package embedding turns text into fixed-length unit vectors.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrNotInitialized is returned by Generator.Embed before a successful Initialize.
var ErrNotInitialized = errors.New("embedding model not initialized")

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// Loader loads a model and returns a ready Embedder. It is called at most once per
// successful Generator.Initialize.
type Loader func(ctx context.Context) (Embedder, error)

// Generator owns one lazily loaded Embedder and guards it with an init state machine.
// The model is loaded once and shared by every caller.
type Generator struct {
	modelName string
	load      Loader
	embedder  Embedder
	mu        sync.RWMutex
	logger    *zap.Logger
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithLogger sets the logger used for model load events.
func WithLogger(l *zap.Logger) GeneratorOption {
	return func(g *Generator) { g.logger = l }
}

// NewGenerator creates a Generator for modelName. load runs on the first Initialize.
func NewGenerator(modelName string, load Loader, opts ...GeneratorOption) *Generator {
	g := &Generator{modelName: modelName, load: load, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewStaticGenerator wraps an already constructed Embedder.
func NewStaticGenerator(modelName string, e Embedder, opts ...GeneratorOption) *Generator {
	return NewGenerator(modelName, func(context.Context) (Embedder, error) { return e, nil }, opts...)
}

// Initialize loads the model. Calls after a success are no-ops. A failed load leaves
// the generator uninitialized so a later call can retry.
func (g *Generator) Initialize(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.embedder != nil {
		return nil
	}
	if g.load == nil {
		return fmt.Errorf("load model %s: no loader configured", g.modelName)
	}
	g.logger.Info("loading embedding model", zap.String("model", g.modelName))
	e, err := g.load(ctx)
	if err != nil {
		return fmt.Errorf("load model %s: %w", g.modelName, err)
	}
	g.embedder = e
	g.logger.Info("embedding model ready",
		zap.String("model", g.modelName),
		zap.Int("dimensions", e.Dimensions()))
	return nil
}

// Ready reports whether Initialize has succeeded.
func (g *Generator) Ready() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.embedder != nil
}

// Embed returns the unit vector for text.
func (g *Generator) Embed(ctx context.Context, text string) ([]float32, error) {
	g.mu.RLock()
	e := g.embedder
	g.mu.RUnlock()
	if e == nil {
		return nil, ErrNotInitialized
	}
	return e.Embed(ctx, text)
}

// EmbedBatch returns one unit vector per text, in order.
func (g *Generator) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	g.mu.RLock()
	e := g.embedder
	g.mu.RUnlock()
	if e == nil {
		return nil, ErrNotInitialized
	}
	return e.EmbedBatch(ctx, texts)
}

// ModelName returns the configured model identifier.
func (g *Generator) ModelName() string {
	return g.modelName
}

// Dimensions returns the loaded model's output size, or 0 before Initialize.
func (g *Generator) Dimensions() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.embedder == nil {
		return 0
	}
	return g.embedder.Dimensions()
}

// Close releases the model. The generator can be initialized again afterwards.
func (g *Generator) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.embedder == nil {
		return nil
	}
	err := g.embedder.Close()
	g.embedder = nil
	return err
}

// embedEach calls embed for each text in order and stops at the first error.
func embedEach(ctx context.Context, texts []string, embed func(context.Context, string) ([]float32, error)) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}
