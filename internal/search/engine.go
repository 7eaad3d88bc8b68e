// Package search answers similarity queries against the loaded vector index.
package search

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/statsearch/internal/config"
	"github.com/hyperjump/statsearch/internal/embedding"
	"github.com/hyperjump/statsearch/internal/indexer"
	"github.com/hyperjump/statsearch/internal/models"
	"github.com/hyperjump/statsearch/internal/storage"
	"github.com/hyperjump/statsearch/internal/vector"
)

// Modes reported by Engine.Mode.
const (
	ModeNormal = "normal"
	ModeFast   = "fast"
)

// Engine embeds query text, searches the current index snapshot and hydrates
// the hits from the metadata store. The snapshot may be replaced at any time
// with Swap; each query uses the snapshot current when it started.
type Engine struct {
	snapshot atomic.Pointer[vector.Store]
	disabled bool
	embedder embedding.Embedder
	storage  storage.Storage
	config   config.SearchConfig
	logger   *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets a logger for per-query debug output.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an engine serving snapshot. A nil snapshot starts the
// engine without an index; queries then fail with ErrIndexUnavailable until
// Swap installs one.
func NewEngine(
	snapshot *vector.Store,
	embedder embedding.Embedder,
	metadata storage.Storage,
	cfg config.SearchConfig,
	opts ...EngineOption,
) *Engine {
	e := newEngine(embedder, metadata, cfg, opts)
	if snapshot != nil {
		e.snapshot.Store(snapshot)
	}
	return e
}

// NewDisabledEngine creates a fast-mode engine; every query fails with
// ErrSearchDisabled.
func NewDisabledEngine(metadata storage.Storage, cfg config.SearchConfig, opts ...EngineOption) *Engine {
	e := newEngine(nil, metadata, cfg, opts)
	e.disabled = true
	return e
}

func newEngine(embedder embedding.Embedder, metadata storage.Storage, cfg config.SearchConfig, opts []EngineOption) *Engine {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = models.DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = models.MaxLimit
	}
	if cfg.StreamLimit <= 0 {
		cfg.StreamLimit = 10
	}
	e := &Engine{embedder: embedder, storage: metadata, config: cfg}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e
}

// current returns the snapshot to answer a query with.
func (e *Engine) current() (*vector.Store, error) {
	if e.disabled {
		return nil, ErrSearchDisabled
	}
	s := e.snapshot.Load()
	if s == nil {
		return nil, ErrIndexUnavailable
	}
	return s, nil
}

// Find returns up to q.Limit records most similar to q.Query, nearest first.
// Records missing from the metadata store are skipped, so fewer than q.Limit
// records may be returned.
func (e *Engine) Find(ctx context.Context, q *models.SearchQuery) ([]*models.Record, error) {
	snap, err := e.current()
	if err != nil {
		return nil, err
	}
	if err := q.Validate(e.config.DefaultLimit, e.config.MaxLimit); err != nil {
		return nil, err
	}
	start := time.Now()
	neighbors, err := e.neighbors(ctx, snap, q.Query, q.Limit)
	if err != nil {
		return nil, err
	}
	records := make([]*models.Record, 0, len(neighbors))
	err = e.hydrate(ctx, neighbors, func(r *models.Record) error {
		records = append(records, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Debug("find",
		zap.String("query", q.Query),
		zap.Int("limit", q.Limit),
		zap.Int("results", len(records)),
		zap.Duration("took", time.Since(start)),
	)
	return records, nil
}

// Stream emits the StreamLimit records nearest to query, in order, each as
// soon as it is read from the metadata store. It stops at the first error
// returned by emit or when ctx is done.
func (e *Engine) Stream(ctx context.Context, query string, emit func(*models.Record) error) error {
	snap, err := e.current()
	if err != nil {
		return err
	}
	q := &models.SearchQuery{Query: query, Limit: e.config.StreamLimit}
	if err := q.Validate(e.config.StreamLimit, e.config.StreamLimit); err != nil {
		return err
	}
	neighbors, err := e.neighbors(ctx, snap, q.Query, q.Limit)
	if err != nil {
		return err
	}
	return e.hydrate(ctx, neighbors, emit)
}

// Neighbors returns the raw index hits for query without reading metadata.
func (e *Engine) Neighbors(ctx context.Context, query string, k int) ([]vector.Neighbor, error) {
	snap, err := e.current()
	if err != nil {
		return nil, err
	}
	q := &models.SearchQuery{Query: query, Limit: k}
	if err := q.Validate(e.config.DefaultLimit, e.config.MaxLimit); err != nil {
		return nil, err
	}
	return e.neighbors(ctx, snap, q.Query, q.Limit)
}

func (e *Engine) neighbors(ctx context.Context, snap *vector.Store, query string, k int) ([]vector.Neighbor, error) {
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", indexer.ErrEmbeddingFailure, err)
	}
	neighbors, err := snap.Search(vec, k)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	return neighbors, nil
}

func (e *Engine) hydrate(ctx context.Context, neighbors []vector.Neighbor, emit func(*models.Record) error) error {
	for _, n := range neighbors {
		if err := ctx.Err(); err != nil {
			return err
		}
		r, err := e.storage.GetRecord(ctx, n.ID)
		if errors.Is(err, storage.ErrNotFound) {
			e.logger.Debug("indexed record missing from metadata store", zap.Int64("id", n.ID))
			continue
		}
		if err != nil {
			return fmt.Errorf("load record %d: %w", n.ID, err)
		}
		if err := emit(r); err != nil {
			return err
		}
	}
	return nil
}

// Swap installs s as the snapshot for subsequent queries and returns the previous one.
func (e *Engine) Swap(s *vector.Store) *vector.Store {
	return e.snapshot.Swap(s)
}

// SearchAvailable reports whether the engine was started with search enabled.
func (e *Engine) SearchAvailable() bool {
	return !e.disabled
}

// IndexLoaded reports whether queries can be answered.
func (e *Engine) IndexLoaded() bool {
	return !e.disabled && e.snapshot.Load() != nil
}

// IndexSize returns the number of indexed vectors, or 0 without an index.
func (e *Engine) IndexSize() int {
	if s := e.snapshot.Load(); s != nil {
		return s.Len()
	}
	return 0
}

// Dimension returns the index dimension, or 0 without an index.
func (e *Engine) Dimension() int {
	if s := e.snapshot.Load(); s != nil {
		return s.Dimension()
	}
	return 0
}

// Mode returns ModeFast for disabled engines and ModeNormal otherwise.
func (e *Engine) Mode() string {
	if e.disabled {
		return ModeFast
	}
	return ModeNormal
}
