package vector

import "math"

// SquaredL2 returns the squared Euclidean distance between a and b, computed in
// float32 like a flat L2 index does. The slices must have equal length.
func SquaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// finite reports whether every component of v is neither NaN nor infinite.
func finite(v []float32) bool {
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
