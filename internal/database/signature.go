package database

import (
	"math"

	"github.com/kozaktomas/facegate/internal/features"
)

// Signature flattens a bundle into one vector for nearest-neighbour search.
// Each family is L2 normalised and weighted by 1/sqrt(families), so the
// cosine similarity of two signatures is the mean per-family cosine.
func Signature(b features.Bundle) []float32 {
	families := b.Families()
	if len(families) == 0 {
		return nil
	}
	weight := 1 / math.Sqrt(float64(len(families)))

	var n int
	for _, f := range families {
		n += len(b[f])
	}
	out := make([]float32, 0, n)
	for _, f := range families {
		v := b[f]
		var ss float64
		for _, x := range v {
			ss += x * x
		}
		norm := math.Sqrt(ss)
		for _, x := range v {
			if norm == 0 {
				out = append(out, 0)
				continue
			}
			out = append(out, float32(x/norm*weight))
		}
	}
	return out
}

// CosineDistance computes the cosine distance between two vectors
// Returns a value between 0 (identical) and 2 (opposite)
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2.0 // Maximum distance for invalid input
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 2.0
	}

	similarity := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	similarity = max(-1, min(1, similarity))
	return 1 - similarity
}
