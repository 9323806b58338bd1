package embedding

import (
	"context"
	"fmt"
)

// Backend names an embedder implementation.
type Backend string

const (
	BackendONNX   Backend = "onnx"
	BackendOllama Backend = "ollama"
	BackendOpenAI Backend = "openai"
	BackendHash   Backend = "hash"
)

// Options selects and configures a backend.
type Options struct {
	Backend           Backend
	ModelName         string
	ModelPath         string
	VocabPath         string
	LibraryPath       string
	Dimensions        int
	MaxTokens         int
	CacheSize         int
	OllamaHost        string
	OpenAIModel       string
	OpenAIKey         string
	RequestsPerSecond float64
}

// NewLoader returns a Loader that builds the configured backend. A load failure is
// returned as is; there is no fallback to another backend.
func NewLoader(opts Options) (Loader, error) {
	switch opts.Backend {
	case BackendONNX, "":
		return func(ctx context.Context) (Embedder, error) {
			return NewONNXEmbedder(ONNXOptions{
				ModelPath:   opts.ModelPath,
				VocabPath:   opts.VocabPath,
				LibraryPath: opts.LibraryPath,
				Dimensions:  opts.Dimensions,
				MaxTokens:   opts.MaxTokens,
				CacheSize:   opts.CacheSize,
			})
		}, nil
	case BackendOllama:
		return func(ctx context.Context) (Embedder, error) {
			e, err := NewOllamaEmbedder(opts.OllamaHost, RemoteOptions{
				Model:             opts.ModelName,
				Dimensions:        opts.Dimensions,
				CacheSize:         opts.CacheSize,
				RequestsPerSecond: opts.RequestsPerSecond,
			})
			if err != nil {
				return nil, err
			}
			if err := e.Ping(ctx); err != nil {
				return nil, err
			}
			return e, nil
		}, nil
	case BackendOpenAI:
		return func(ctx context.Context) (Embedder, error) {
			return NewOpenAIEmbedder(opts.OpenAIKey, RemoteOptions{
				Model:             opts.OpenAIModel,
				Dimensions:        opts.Dimensions,
				CacheSize:         opts.CacheSize,
				RequestsPerSecond: opts.RequestsPerSecond,
			})
		}, nil
	case BackendHash:
		return func(ctx context.Context) (Embedder, error) {
			return NewHashEmbedder(opts.Dimensions), nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown embedding backend: %s (supported: onnx, ollama, openai, hash)", opts.Backend)
	}
}
