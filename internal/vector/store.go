package vector

import (
	"container/heap"
	"fmt"
)

// Store is an immutable flat index: one contiguous row-major float32 buffer
// and the parallel external ID for every slot. A Store is safe for concurrent
// use by any number of readers; it has no mutating methods.
type Store struct {
	dimension int
	data      []float32
	ids       []int64
}

// Build creates a Store from parallel ids and vectors. The dimension is taken
// from the first vector; slot order equals input order. Inputs are copied.
func Build(ids []int64, vectors [][]float32) (*Store, error) {
	if len(ids) != len(vectors) {
		return nil, fmt.Errorf("ids and vectors length mismatch: %d != %d", len(ids), len(vectors))
	}
	if len(vectors) == 0 {
		return nil, ErrEmptyCorpus
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("%w: entry 0 has no components", ErrDimensionMismatch)
	}
	data := make([]float32, 0, len(vectors)*dim)
	for i, v := range vectors {
		if len(v) != dim {
			return nil, &DimensionMismatchError{Expected: dim, Actual: len(v), Slot: i}
		}
		data = append(data, v...)
	}
	return &Store{
		dimension: dim,
		data:      data,
		ids:       append([]int64(nil), ids...),
	}, nil
}

// BuildPairs creates a Store from (id, vector) pairs.
func BuildPairs(pairs []Pair) (*Store, error) {
	ids := make([]int64, len(pairs))
	vectors := make([][]float32, len(pairs))
	for i, p := range pairs {
		ids[i] = p.ID
		vectors[i] = p.Vector
	}
	return Build(ids, vectors)
}

// fromFlat wraps already-validated buffers without copying.
func fromFlat(dimension int, data []float32, ids []int64) *Store {
	return &Store{dimension: dimension, data: data, ids: ids}
}

// Dimension returns the fixed vector length.
func (s *Store) Dimension() int {
	return s.dimension
}

// Len returns the number of stored vectors.
func (s *Store) Len() int {
	return len(s.ids)
}

// IDs returns a copy of the slot-ordered ID sequence.
func (s *Store) IDs() []int64 {
	return append([]int64(nil), s.ids...)
}

// ID returns the external ID at slot.
func (s *Store) ID(slot int) int64 {
	return s.ids[slot]
}

// Vector returns a copy of the vector at slot.
func (s *Store) Vector(slot int) []float32 {
	return append([]float32(nil), s.row(slot)...)
}

func (s *Store) row(slot int) []float32 {
	off := slot * s.dimension
	return s.data[off : off+s.dimension : off+s.dimension]
}

// Search returns the min(k, Len()) nearest vectors to query by squared L2
// distance, ascending. Equal distances rank by lower slot first.
func (s *Store) Search(query []float32, k int) ([]Neighbor, error) {
	if len(query) != s.dimension {
		return nil, &DimensionMismatchError{Expected: s.dimension, Actual: len(query), Slot: -1}
	}
	if !finite(query) {
		return nil, ErrNonFiniteQuery
	}
	if k < 0 {
		return nil, ErrInvalidK
	}
	if k > len(s.ids) {
		k = len(s.ids)
	}
	if k == 0 {
		return []Neighbor{}, nil
	}
	q := make(candidateQueue, 0, k)
	heap.Init(&q)
	for slot := range s.ids {
		q.offer(Neighbor{Slot: slot, Distance: SquaredL2(query, s.row(slot))}, k)
	}
	out := q.drain()
	for i := range out {
		out[i].ID = s.ids[out[i].Slot]
	}
	return out, nil
}
