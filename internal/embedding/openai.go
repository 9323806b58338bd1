package embedding

import (
	"context"
	"errors"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder uses the OpenAI embeddings API.
type OpenAIEmbedder struct {
	remote
	client *openai.Client
}

// NewOpenAIEmbedder creates an OpenAI embedder. apiKey falls back to OPENAI_API_KEY.
func NewOpenAIEmbedder(apiKey string, opts RemoteOptions) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable not set")
	}
	if opts.Model == "" {
		opts.Model = string(openai.SmallEmbedding3)
	}
	if opts.Dimensions == 0 {
		// default for text-embedding-3-small
		opts.Dimensions = 1536
		if opts.Model == string(openai.LargeEmbedding3) {
			opts.Dimensions = 3072
		}
	}
	return &OpenAIEmbedder{
		remote: newRemote(opts),
		client: openai.NewClient(apiKey),
	}, nil
}

// Embed generates an embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, errors.New("cannot embed empty text")
	}
	return e.embed(ctx, text, func(ctx context.Context, text string) ([]float32, error) {
		vecs, err := e.request(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		return vecs[0], nil
	})
}

// EmbedBatch sends every uncached text in a single embeddings request.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for i, text := range texts {
		if text == "" {
			return nil, fmt.Errorf("cannot embed empty text %d", i)
		}
	}
	return e.embedBatch(ctx, texts, e.request)
}

func (e *OpenAIEmbedder) request(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d texts", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("openai returned embedding index %d out of range", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for i := range d.Embedding {
			vec[i] = float32(d.Embedding[i])
		}
		out[d.Index] = vec
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
