package search

import (
	"errors"
	"fmt"
)

// ErrIndexUnavailable is returned when no index snapshot is loaded.
var ErrIndexUnavailable = errors.New("search index not initialized")

// ErrSearchDisabled is returned by engines started in fast mode. It satisfies
// errors.Is(err, ErrIndexUnavailable).
var ErrSearchDisabled = fmt.Errorf("search disabled in fast mode: %w", ErrIndexUnavailable)
