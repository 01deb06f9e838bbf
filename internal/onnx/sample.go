package onnx

import (
	"math"
	"math/rand"
)

// sampleTopK draws one index from logits restricted to the k largest
// entries, after temperature scaling and a softmax over the survivors.
// k <= 0 or k >= len(logits) means no truncation; non-positive temperature
// degenerates to argmax.
func sampleTopK(logits []float32, k int, temperature float64, rng *rand.Rand) int {
	if len(logits) == 0 {
		return 0
	}

	if temperature <= 0 {
		return argmax(logits)
	}

	if k <= 0 || k > len(logits) {
		k = len(logits)
	}

	indices := topKIndices(logits, k)

	// Softmax over the survivors, scaled by temperature. Subtracting the
	// max keeps the exponentials finite.
	maxLogit := logits[indices[0]]
	weights := make([]float64, len(indices))
	total := 0.0

	for i, idx := range indices {
		w := math.Exp(float64(logits[idx]-maxLogit) / temperature)
		weights[i] = w
		total += w
	}

	target := rng.Float64() * total
	acc := 0.0

	for i, w := range weights {
		acc += w
		if target < acc {
			return indices[i]
		}
	}

	return indices[len(indices)-1]
}

// topKIndices returns the indices of the k largest logits, the largest
// first. Selection sort over k passes; k is small (typically 50).
func topKIndices(logits []float32, k int) []int {
	indices := make([]int, len(logits))
	for i := range indices {
		indices[i] = i
	}

	for i := 0; i < k; i++ {
		best := i
		for j := i + 1; j < len(indices); j++ {
			if logits[indices[j]] > logits[indices[best]] {
				best = j
			}
		}

		indices[i], indices[best] = indices[best], indices[i]
	}

	return indices[:k]
}

func argmax(logits []float32) int {
	best := 0
	for i, v := range logits {
		if v > logits[best] {
			best = i
		}
	}

	return best
}
