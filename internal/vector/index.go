// Package vector provides the immutable flat L2 vector index, its exact
// brute-force k-nearest-neighbor search, and the two-artifact binary codec.
package vector

// Pair is a single corpus entry: an external record ID and its embedding.
type Pair struct {
	ID     int64
	Vector []float32
}

// Neighbor is a single search hit.
type Neighbor struct {
	ID       int64   `json:"id"`
	Distance float32 `json:"distance"` // squared L2
	Slot     int     `json:"-"`
}
