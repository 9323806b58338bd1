package vector

import (
	"fmt"
	"math"
	"strings"
)

// Metric selects the distance function of an index.
type Metric string

const (
	// Cosine ranks by cosine similarity, higher first.
	Cosine Metric = "cosine"
	// Euclidean ranks by L2 distance, lower first.
	Euclidean Metric = "l2"
)

// ParseMetric accepts the persisted space names ("cosine", "l2") as well as the
// distance function names written into index files.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cosine", "cosinesimilarity":
		return Cosine, nil
	case "l2", "euclidean", "euclideandistance":
		return Euclidean, nil
	default:
		return "", fmt.Errorf("unknown metric: %s (supported: cosine, l2)", s)
	}
}

// DistanceFunction returns the name recorded in index files.
func (m Metric) DistanceFunction() string {
	if m == Euclidean {
		return "euclideanDistance"
	}
	return "cosineSimilarity"
}

// Distance computes the metric value between a and b.
func (m Metric) Distance(a, b []float32) float64 {
	if m == Euclidean {
		return EuclideanDistance(a, b)
	}
	return CosineSimilarity(a, b)
}

// better reports whether distance a ranks strictly ahead of b.
func (m Metric) better(a, b float64) bool {
	if m == Euclidean {
		return a < b
	}
	return a > b
}

// DefaultScoreOffset is the constant in 1/(offset+distance) used for Euclidean scores.
const DefaultScoreOffset = 1.0

// Score converts a raw metric value into a higher-is-better score. Cosine similarity
// is returned as is; Euclidean distance maps to 1/(offset+distance).
func Score(m Metric, distance, offset float64) float64 {
	if m == Euclidean {
		if offset <= 0 {
			offset = DefaultScoreOffset
		}
		return 1 / (offset + distance)
	}
	return distance
}

// InnerProduct returns the dot product of a and b, or 0 when their lengths differ.
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when either
// vector has zero magnitude.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// EuclideanDistance returns the straight-line distance between a and b.
func EuclideanDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
