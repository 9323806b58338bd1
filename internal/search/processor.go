package search

import (
	"context"
	"time"

	"github.com/hyperjump/shirabe/internal/models"
)

// ProcessQuery validates the query and applies the engine's default and maximum top-k.
func (e *Engine) ProcessQuery(query *models.SearchQuery) error {
	if query.TopK <= 0 {
		query.TopK = e.defaultTopK
	}
	return query.Validate(e.maxTopK)
}

// Query validates query, runs Search and formats the hits.
func (e *Engine) Query(ctx context.Context, query models.SearchQuery) (*models.SearchResponse, error) {
	if err := e.ProcessQuery(&query); err != nil {
		return nil, &QueryError{Err: err}
	}
	start := time.Now()
	results, err := e.Search(ctx, query.Query, query.TopK)
	if err != nil {
		return nil, err
	}
	return &models.SearchResponse{
		Query:     query.Query,
		Results:   results,
		Hits:      FormatHits(results, e.labelLen),
		QueryTime: time.Since(start).Milliseconds(),
	}, nil
}

// QueryError reports a request the engine refused before searching.
type QueryError struct {
	Err error
}

func (e *QueryError) Error() string { return "invalid query: " + e.Err.Error() }

func (e *QueryError) Unwrap() error { return e.Err }
