package vector

import (
	"errors"
	"fmt"
)

var (
	// ErrDimensionMismatch is matched by every *DimensionMismatchError.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrEmptyCorpus is returned when building from zero records.
	ErrEmptyCorpus = errors.New("empty corpus")
	// ErrCorruptIndex is returned when persisted artifacts are inconsistent.
	ErrCorruptIndex = errors.New("corrupt index")
	// ErrInvalidK is returned for a negative k.
	ErrInvalidK = errors.New("k must not be negative")
	// ErrNonFiniteQuery is returned for a query with a NaN or infinite
	// component, whose distances cannot be ordered.
	ErrNonFiniteQuery = errors.New("query has a non-finite component")
)

// DimensionMismatchError reports a vector whose length disagrees with the
// index dimension. Slot is the offending input position at build time, or -1
// for a query vector.
type DimensionMismatchError struct {
	Expected int
	Actual   int
	Slot     int
}

func (e *DimensionMismatchError) Error() string {
	if e.Slot < 0 {
		return fmt.Sprintf("query dimension mismatch: got %d, expected %d", e.Actual, e.Expected)
	}
	return fmt.Sprintf("vector dimension mismatch at entry %d: got %d, expected %d", e.Slot, e.Actual, e.Expected)
}

// Is makes errors.Is(err, ErrDimensionMismatch) true.
func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}
