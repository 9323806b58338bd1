package vector

import "fmt"

// Kind names an index implementation.
type Kind string

const (
	// KindFlat is exact brute-force search. Suited to corpora of a few thousand passages.
	KindFlat Kind = "flat"
)

// NewIndex creates an empty index of the given kind. Only "flat" (the default) is supported.
func NewIndex(kind string, metric Metric) (Index, error) {
	switch Kind(kind) {
	case KindFlat, "":
		return NewFlatIndex(metric), nil
	default:
		return nil, fmt.Errorf("unknown index kind: %s (supported: flat)", kind)
	}
}
