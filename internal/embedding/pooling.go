package embedding

// MeanPool averages token embeddings laid out as [tokens][dim] in hidden, counting only
// positions where mask is 1.
func MeanPool(hidden []float32, mask []int64, dim int) []float32 {
	out := make([]float32, dim)
	if dim <= 0 {
		return out
	}
	var n float32
	for t, m := range mask {
		if m == 0 {
			continue
		}
		row := hidden[t*dim:]
		if len(row) < dim {
			break
		}
		for j := 0; j < dim; j++ {
			out[j] += row[j]
		}
		n++
	}
	if n > 0 {
		for j := range out {
			out[j] /= n
		}
	}
	return out
}
