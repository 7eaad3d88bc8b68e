package vector

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	float32Size = 4
	int64Size   = 8
)

// Encode serializes s into the vector artifact (count*dimension little-endian
// float32, vector-major) and the id artifact (count little-endian int64).
// Neither artifact carries a header.
func Encode(s *Store) (vectorBytes, idBytes []byte) {
	vectorBytes = make([]byte, len(s.data)*float32Size)
	for i, v := range s.data {
		binary.LittleEndian.PutUint32(vectorBytes[i*float32Size:], math.Float32bits(v))
	}
	idBytes = make([]byte, len(s.ids)*int64Size)
	for i, id := range s.ids {
		binary.LittleEndian.PutUint64(idBytes[i*int64Size:], uint64(id))
	}
	return vectorBytes, idBytes
}

// Decode rebuilds a Store from the two artifacts produced by Encode. The
// dimension is not stored in the artifacts and must be supplied.
func Decode(vectorBytes, idBytes []byte, dimension int) (*Store, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", ErrCorruptIndex, dimension)
	}
	rowSize := float32Size * dimension
	if len(vectorBytes)%rowSize != 0 {
		return nil, fmt.Errorf("%w: vector artifact length %d is not a multiple of %d", ErrCorruptIndex, len(vectorBytes), rowSize)
	}
	if len(idBytes)%int64Size != 0 {
		return nil, fmt.Errorf("%w: id artifact length %d is not a multiple of %d", ErrCorruptIndex, len(idBytes), int64Size)
	}
	count := len(vectorBytes) / rowSize
	if n := len(idBytes) / int64Size; n != count {
		return nil, fmt.Errorf("%w: %d vectors but %d ids", ErrCorruptIndex, count, n)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: no vectors", ErrCorruptIndex)
	}

	data := make([]float32, count*dimension)
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(vectorBytes[i*float32Size:]))
	}
	ids := make([]int64, count)
	for i := range ids {
		ids[i] = int64(binary.LittleEndian.Uint64(idBytes[i*int64Size:]))
	}
	return fromFlat(dimension, data, ids), nil
}
