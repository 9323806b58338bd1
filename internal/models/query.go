package models

import (
	"fmt"
	"strings"
)

// DefaultTopK is the number of results returned when a query does not ask for a count.
const DefaultTopK = 5

// SearchQuery is a search request as received by the HTTP and MCP surfaces.
type SearchQuery struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

// Validate trims the query, rejects empty input, and clamps TopK to [1, maxTopK].
// A zero maxTopK disables the upper bound.
func (q *SearchQuery) Validate(maxTopK int) error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.TopK <= 0 {
		q.TopK = DefaultTopK
	}
	if maxTopK > 0 && q.TopK > maxTopK {
		q.TopK = maxTopK
	}
	return nil
}
