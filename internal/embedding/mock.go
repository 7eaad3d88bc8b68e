package embedding

import (
	"context"
	"errors"
	"math"
	"sync/atomic"

	"github.com/hyperjump/statsearch/pkg/utils"
)

// MockModel is the model name recorded for indexes embedded by MockEmbedder.
const MockModel = "mock"

// MockEmbedder is a deterministic embedder for tests. It returns a fixed-dimension
// vector derived from the text hash so that the same text always gets the same embedding.
type MockEmbedder struct {
	dimensions int
	calls      atomic.Int64
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed returns a deterministic unit-length embedding based on the text hash.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.calls.Add(1)
	h := HashString(text)
	emb := make([]float32, e.dimensions)
	for i := range emb {
		emb[i] = float32(math.Sin(float64(h%100003)*float64(i+1))*0.1 + 0.01)
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Calls returns how many texts have been embedded.
func (e *MockEmbedder) Calls() int64 {
	return e.calls.Load()
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}

// ErrMockFailure is the default error returned by FailingEmbedder.
var ErrMockFailure = errors.New("embedding model unavailable")

// FailingEmbedder delegates to a MockEmbedder but fails for texts matched by
// FailOn, or for every text when FailOn is nil.
type FailingEmbedder struct {
	*MockEmbedder
	Err    error
	FailOn func(text string) bool
	// WrongLength, when set, makes EmbedBatch return one embedding fewer than requested.
	WrongLength bool
}

// NewFailingEmbedder returns an embedder whose every call fails with ErrMockFailure.
func NewFailingEmbedder(dimensions int) *FailingEmbedder {
	return &FailingEmbedder{MockEmbedder: NewMockEmbedder(dimensions), Err: ErrMockFailure}
}

func (e *FailingEmbedder) fails(text string) bool {
	return e.FailOn == nil || e.FailOn(text)
}

func (e *FailingEmbedder) err() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrMockFailure
}

// Embed fails when the text matches.
func (e *FailingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if !e.WrongLength && e.fails(text) {
		return nil, e.err()
	}
	return e.MockEmbedder.Embed(ctx, text)
}

// EmbedBatch fails when any text matches.
func (e *FailingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.WrongLength {
		out, err := e.MockEmbedder.EmbedBatch(ctx, texts)
		if err != nil || len(out) == 0 {
			return out, err
		}
		return out[:len(out)-1], nil
	}
	return embedEach(ctx, texts, e.Embed)
}
