package domain

import "math"

// Dot computes the inner product of two equal-length vectors.
// With unit-normalized inputs this equals cosine similarity.
func Dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Norm computes the Euclidean magnitude of a vector.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize returns a unit-length copy of v and its original magnitude.
// A zero vector is returned unchanged with magnitude 0.
func Normalize(v []float32) ([]float32, float64) {
	n := Norm(v)
	if n == 0 {
		return v, 0
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out, n
}
