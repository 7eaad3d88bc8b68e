// Package indexer embeds the record corpus, builds the vector index and
// persists it as artifacts.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/statsearch/internal/corpus"
	"github.com/hyperjump/statsearch/internal/embedding"
	"github.com/hyperjump/statsearch/internal/models"
	"github.com/hyperjump/statsearch/internal/vector"
)

// ErrEmbeddingFailure is returned when the embedder fails or returns an
// unusable result.
var ErrEmbeddingFailure = errors.New("embedding failure")

// Default batch size and embedding concurrency.
const (
	DefaultBatchSize   = 64
	DefaultConcurrency = 4
)

// Builder embeds records and builds a vector.Store from them.
type Builder struct {
	embedder    embedding.Embedder
	batchSize   int
	concurrency int
	logger      *zap.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLogger sets a logger for progress output.
func WithLogger(l *zap.Logger) BuilderOption {
	return func(b *Builder) { b.logger = l }
}

// WithBatchSize sets how many texts go to the embedder per call.
func WithBatchSize(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

// WithConcurrency sets how many batches are embedded at once.
func WithConcurrency(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBuilder creates a Builder using embedder.
func NewBuilder(embedder embedding.Embedder, opts ...BuilderOption) *Builder {
	b := &Builder{
		embedder:    embedder,
		batchSize:   DefaultBatchSize,
		concurrency: DefaultConcurrency,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	return b
}

// Build embeds every record and returns the index. Slot i holds records[i].
// An empty corpus returns vector.ErrEmptyCorpus; any embedding error aborts
// the build with ErrEmbeddingFailure.
func (b *Builder) Build(ctx context.Context, records []models.Record) (*vector.Store, error) {
	if len(records) == 0 {
		return nil, vector.ErrEmptyCorpus
	}
	start := time.Now()
	texts := corpus.Texts(records)
	vectors, err := b.embedAll(ctx, texts)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	store, err := vector.Build(ids, vectors)
	if err != nil {
		return nil, err
	}
	b.logger.Info("index built",
		zap.Int("records", store.Len()),
		zap.Int("dimension", store.Dimension()),
		zap.Duration("took", time.Since(start)),
	)
	return store, nil
}

// embedAll embeds texts in batches, writing each batch into its own slot range
// so the output order is the input order regardless of completion order.
func (b *Builder) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	batches := (len(texts) + b.batchSize - 1) / b.batchSize

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for n := 0; n < batches; n++ {
		lo := n * b.batchSize
		hi := min(lo+b.batchSize, len(texts))
		g.Go(func() error {
			out, err := b.embedder.EmbedBatch(gctx, texts[lo:hi])
			if err != nil {
				return fmt.Errorf("%w: batch %d: %w", ErrEmbeddingFailure, n, err)
			}
			if len(out) != hi-lo {
				return fmt.Errorf("%w: batch %d returned %d embeddings for %d texts", ErrEmbeddingFailure, n, len(out), hi-lo)
			}
			copy(vectors[lo:hi], out)
			b.logger.Debug("batch embedded", zap.Int("batch", n), zap.Int("size", hi-lo))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}
