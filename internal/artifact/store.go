package artifact

import (
	"context"
	"os"
)

// ErrNotFound is returned when an artifact does not exist.
//
// Backends return an error that satisfies errors.Is(err, ErrNotFound).
var ErrNotFound = os.ErrNotExist

// Store reads and writes whole artifacts by name.
type Store interface {
	// Put writes data under name, replacing any existing artifact. Readers
	// never observe a partially written artifact.
	Put(ctx context.Context, name string, data []byte) error
	// Get returns the full contents of the artifact.
	Get(ctx context.Context, name string) ([]byte, error)
	// Delete removes the artifact. Deleting a missing artifact is not an error.
	Delete(ctx context.Context, name string) error
}
