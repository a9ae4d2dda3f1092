package memory

import "math"

// cosineDistance returns 1 - cosine similarity between two vectors.
// Zero-norm vectors are defined to have maximum distance (1) to any vector.
func cosineDistance(a, b []float32) float64 {
	var dot, normA, normB float64

	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 1
	}

	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
