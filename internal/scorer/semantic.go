package scorer

import "math"

// Cosine returns the cosine similarity of a and b. ok is false when the
// vectors differ in length, are empty, or either has zero norm.
func Cosine(a, b []float32) (sim float64, ok bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}

// SemanticScore is 100 · max(0, cosine).
func SemanticScore(a, b []float32) (float64, bool) {
	sim, ok := Cosine(a, b)
	if !ok {
		return 0, false
	}
	return Round2(Clamp(100 * math.Max(0, sim))), true
}
