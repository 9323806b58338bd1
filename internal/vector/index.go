// Package vector provides exact nearest-neighbor search over embedding vectors.
package vector

import "errors"

var (
	// ErrDimensionMismatch is returned when a vector's length differs from the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrDuplicateID is returned by Add when the id is already present.
	ErrDuplicateID = errors.New("duplicate vector id")
)

// Index stores (id, vector) pairs and answers k-nearest-neighbor queries under a fixed metric.
type Index interface {
	Add(id string, vec []float32) error
	Query(query []float32, k int) ([]string, error)
	QueryWithDistances(query []float32, k int) ([]Neighbor, error)
	Len() int
	Dimension() int
	Metric() Metric
	Entries() []Entry
}

// Neighbor is a query hit. Distance is the raw metric value: cosine similarity for
// Cosine, straight-line distance for Euclidean.
type Neighbor struct {
	ID       string
	Distance float64
}

// Entry is one stored vector.
type Entry struct {
	ID     string    `json:"id"`
	Vector []float32 `json:"vector"`
}
