package embedding

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
)

// OllamaEmbedder wraps the Ollama API for embedding generation.
type OllamaEmbedder struct {
	remote
	client *api.Client
}

// NewOllamaEmbedder creates an embedder connected to the Ollama server at host.
func NewOllamaEmbedder(host string, opts RemoteOptions) (*OllamaEmbedder, error) {
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parse ollama host: %w", err)
	}
	return &OllamaEmbedder{
		remote: newRemote(opts),
		client: api.NewClient(u, http.DefaultClient),
	}, nil
}

// Ping checks that the server answers.
func (e *OllamaEmbedder) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := e.client.Version(ctx); err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	return nil
}

// Embed generates a single embedding vector.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.embed(ctx, text, func(ctx context.Context, text string) ([]float32, error) {
		resp, err := e.client.Embed(ctx, &api.EmbedRequest{
			Model: e.model,
			Input: text,
		})
		if err != nil {
			return nil, fmt.Errorf("ollama embed: %w", err)
		}
		if len(resp.Embeddings) == 0 {
			return nil, fmt.Errorf("ollama returned no embeddings")
		}
		vec := make([]float32, len(resp.Embeddings[0]))
		copy(vec, resp.Embeddings[0])
		return vec, nil
	})
}

// EmbedBatch calls Embed for each text.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

// Dimensions returns the configured embedding dimension.
func (e *OllamaEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *OllamaEmbedder) Close() error {
	return nil
}
