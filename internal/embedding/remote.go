package embedding

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/hyperjump/shirabe/pkg/utils"
)

// RemoteOptions configures embedders backed by an inference service.
type RemoteOptions struct {
	Model             string
	Dimensions        int
	CacheSize         int
	RequestsPerSecond float64
}

// remote holds the pieces shared by HTTP-backed embedders: a limiter, a cache, and the
// dimension check on every response.
type remote struct {
	model      string
	dimensions int
	cache      *Cache
	limiter    *rate.Limiter
}

func newRemote(opts RemoteOptions) remote {
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	return remote{
		model:      opts.Model,
		dimensions: opts.Dimensions,
		cache:      NewCache(opts.CacheSize),
		limiter:    rate.NewLimiter(limit, 1),
	}
}

// embed consults the cache, waits for the limiter, calls fetch, then checks and normalizes the vector.
func (r *remote) embed(ctx context.Context, text string, fetch func(context.Context, string) ([]float32, error)) ([]float32, error) {
	if cached, ok := r.cache.Get(text); ok {
		return cached, nil
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	vec, err := fetch(ctx, text)
	if err != nil {
		return nil, err
	}
	if r.dimensions > 0 && len(vec) != r.dimensions {
		return nil, fmt.Errorf("model %s returned %d dimensions, expected %d", r.model, len(vec), r.dimensions)
	}
	utils.NormalizeL2(vec)
	r.cache.Put(text, vec)
	return vec, nil
}

// embedBatch serves cached texts from the cache and fetches the rest with one
// limited call. fetch must return one vector per text it is given, in order.
func (r *remote) embedBatch(ctx context.Context, texts []string, fetch func(context.Context, []string) ([][]float32, error)) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []int
	for i, text := range texts {
		if cached, ok := r.cache.Get(text); ok {
			out[i] = cached
			continue
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return out, nil
	}
	pending := make([]string, len(missing))
	for j, i := range missing {
		pending[j] = texts[i]
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	vecs, err := fetch(ctx, pending)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(pending) {
		return nil, fmt.Errorf("model %s returned %d embeddings for %d texts", r.model, len(vecs), len(pending))
	}
	for j, i := range missing {
		vec := vecs[j]
		if r.dimensions > 0 && len(vec) != r.dimensions {
			return nil, fmt.Errorf("model %s returned %d dimensions, expected %d", r.model, len(vec), r.dimensions)
		}
		utils.NormalizeL2(vec)
		r.cache.Put(texts[i], vec)
		out[i] = vec
	}
	return out, nil
}
