package vector

import (
	"fmt"
	"sort"
	"sync"
)

// FlatIndex is a brute-force index: every query is scored against every stored vector.
// The first Add fixes the dimension. Ties keep insertion order.
type FlatIndex struct {
	metric    Metric
	dimension int
	ids       []string
	vectors   [][]float32
	norms     []float64 // L2 norm of each stored vector, for cosine
	positions map[string]int
	mu        sync.RWMutex
}

// NewFlatIndex creates an empty index using metric.
func NewFlatIndex(metric Metric) *FlatIndex {
	if metric == "" {
		metric = Cosine
	}
	return &FlatIndex{
		metric:    metric,
		ids:       make([]string, 0),
		vectors:   make([][]float32, 0),
		positions: make(map[string]int),
	}
}

// FromEntries rebuilds an index from persisted entries, in order.
func FromEntries(metric Metric, entries []Entry) (*FlatIndex, error) {
	idx := NewFlatIndex(metric)
	for _, e := range entries {
		if err := idx.Add(e.ID, e.Vector); err != nil {
			return nil, fmt.Errorf("entry %q: %w", e.ID, err)
		}
	}
	return idx, nil
}

// Add appends a copy of vec under id.
func (f *FlatIndex) Add(id string, vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: empty vector for %q", ErrDimensionMismatch, id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dimension == 0 {
		f.dimension = len(vec)
	} else if len(vec) != f.dimension {
		return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(vec), f.dimension)
	}
	if _, ok := f.positions[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	cp := make([]float32, len(vec))
	copy(cp, vec)
	f.positions[id] = len(f.ids)
	f.ids = append(f.ids, id)
	f.vectors = append(f.vectors, cp)
	f.norms = append(f.norms, L2Norm(cp))
	return nil
}

// Query returns up to k ids, best first.
func (f *FlatIndex) Query(query []float32, k int) ([]string, error) {
	hits, err := f.QueryWithDistances(query, k)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	return ids, nil
}

// QueryWithDistances returns up to k neighbors with their raw metric values, best first.
// An empty index yields an empty slice.
func (f *FlatIndex) QueryWithDistances(query []float32, k int) ([]Neighbor, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if k <= 0 || len(f.ids) == 0 {
		return []Neighbor{}, nil
	}
	if len(query) != f.dimension {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(query), f.dimension)
	}
	scored := make([]Neighbor, len(f.ids))
	if f.metric == Cosine {
		qn := L2Norm(query)
		for i, vec := range f.vectors {
			var sim float64
			if qn != 0 && f.norms[i] != 0 {
				sim = InnerProduct(query, vec) / (qn * f.norms[i])
			}
			scored[i] = Neighbor{ID: f.ids[i], Distance: sim}
		}
	} else {
		for i, vec := range f.vectors {
			scored[i] = Neighbor{ID: f.ids[i], Distance: f.metric.Distance(query, vec)}
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return f.metric.better(scored[i].Distance, scored[j].Distance)
	})
	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k], nil
}

// Entries returns a copy of the stored pairs in insertion order.
func (f *FlatIndex) Entries() []Entry {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Entry, len(f.ids))
	for i, id := range f.ids {
		vec := make([]float32, len(f.vectors[i]))
		copy(vec, f.vectors[i])
		out[i] = Entry{ID: id, Vector: vec}
	}
	return out
}

// Len returns the number of stored vectors.
func (f *FlatIndex) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.ids)
}

// Dimension returns the fixed vector length, or 0 before the first Add.
func (f *FlatIndex) Dimension() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dimension
}

// Metric returns the index metric.
func (f *FlatIndex) Metric() Metric {
	return f.metric
}
