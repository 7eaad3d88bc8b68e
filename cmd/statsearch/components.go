package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/statsearch/internal/artifact"
	"github.com/hyperjump/statsearch/internal/config"
	"github.com/hyperjump/statsearch/internal/corpus"
	"github.com/hyperjump/statsearch/internal/embedding"
	"github.com/hyperjump/statsearch/internal/indexer"
	"github.com/hyperjump/statsearch/internal/search"
	"github.com/hyperjump/statsearch/internal/storage"
	"github.com/hyperjump/statsearch/internal/vector"
	"go.uber.org/zap"
)

// Components holds initialized services.
type Components struct {
	Storage   storage.Storage
	Embedder  embedding.Embedder
	// Model names the embedder actually in use: the configured model, or
	// embedding.MockModel after a fallback.
	Model     string
	Artifacts artifact.Store
	Engine    *search.Engine
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

// initializeComponents opens storage, the artifact backend and, unless fast
// mode is on, the embedder and index. The load policy decides what happens
// when the persisted index cannot be read.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c := &Components{Storage: store}

	artifacts, err := artifact.Open(ctx, cfg)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to open artifact store: %w", err)
	}
	c.Artifacts = artifacts

	engineOpts := []search.EngineOption{search.WithLogger(logger)}
	if cfg.Search.FastMode {
		logger.Info("fast mode enabled, semantic search disabled")
		c.Engine = search.NewDisabledEngine(store, cfg.Search, engineOpts...)
		return c, nil
	}

	c.Embedder, c.Model = openEmbedder(cfg, logger)
	snapshot, err := loadIndex(ctx, cfg, c.Embedder, c.Model, store, artifacts, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Engine = search.NewEngine(snapshot, c.Embedder, store, cfg.Search, engineOpts...)
	return c, nil
}

// openEmbedder opens the configured model and returns it with its name. When
// the model cannot be loaded the mock embedder is returned, named
// embedding.MockModel.
func openEmbedder(cfg *config.Config, logger *zap.Logger) (embedding.Embedder, string) {
	embedder, fallback := embedding.Open(embedding.ONNXConfig{
		ModelPath:  cfg.Embedding.ModelPath,
		Dimensions: cfg.Embedding.Dimensions,
		MaxTokens:  cfg.Embedding.MaxTokens,
		CacheSize:  cfg.Embedding.CacheSize,
	}, logger)
	if fallback {
		return embedder, embedding.MockModel
	}
	return embedder, cfg.Embedding.ModelName
}

// openBuildEmbedder opens the embedder for an offline build. Falling back to
// the mock embedder is an ErrEmbeddingFailure unless allowMock is set.
func openBuildEmbedder(cfg *config.Config, allowMock bool, logger *zap.Logger) (embedding.Embedder, string, error) {
	embedder, model := openEmbedder(cfg, logger)
	if model == embedding.MockModel && !allowMock {
		_ = embedder.Close()
		return nil, "", fmt.Errorf("%w: model %s could not be loaded (use --mock or embedding.allow_mock to build with the mock embedder)",
			indexer.ErrEmbeddingFailure, cfg.Embedding.ModelPath)
	}
	return embedder, model, nil
}

func newBuilder(cfg *config.Config, embedder embedding.Embedder, logger *zap.Logger) *indexer.Builder {
	return indexer.NewBuilder(embedder,
		indexer.WithLogger(logger),
		indexer.WithBatchSize(cfg.Embedding.BatchSize),
		indexer.WithConcurrency(cfg.Embedding.Concurrency),
	)
}

// errLoadFailed is returned when the index cannot be loaded and the policy is "fail".
var errLoadFailed = errors.New("index load failed")

// loadIndex loads the persisted index, which must have been embedded by
// model. On failure it applies
// cfg.Search.OnLoadFailure: rebuild in memory from the metadata store,
// start without an index, or return errLoadFailed. A nil store with a nil
// error means the server starts with the index absent.
func loadIndex(
	ctx context.Context,
	cfg *config.Config,
	embedder embedding.Embedder,
	model string,
	metadata storage.Storage,
	artifacts artifact.Store,
	logger *zap.Logger,
) (*vector.Store, error) {
	snapshot, manifest, err := indexer.Load(ctx, artifacts, embedder.Dimensions(), model)
	if err == nil {
		fields := []zap.Field{zap.Int("count", snapshot.Len()), zap.Int("dimension", snapshot.Dimension())}
		if manifest != nil {
			fields = append(fields, zap.String("build_id", manifest.BuildID), zap.String("model", manifest.Model))
		}
		logger.Info("index loaded", fields...)
		return snapshot, nil
	}

	reason := "missing"
	if errors.Is(err, vector.ErrCorruptIndex) {
		reason = "corrupt"
	} else if errors.Is(err, vector.ErrDimensionMismatch) {
		reason = "dimension mismatch"
	}
	logger.Warn("index load failed",
		zap.String("reason", reason),
		zap.String("policy", cfg.Search.OnLoadFailure),
		zap.Error(err),
	)

	switch cfg.Search.OnLoadFailure {
	case config.OnLoadFailureFail:
		return nil, fmt.Errorf("%w: %v", errLoadFailed, err)
	case config.OnLoadFailureDisable:
		logger.Info("starting without an index")
		return nil, nil
	}

	records, err := metadata.ListRecords(ctx)
	if err != nil {
		logger.Warn("rebuild skipped, starting without an index", zap.Error(err))
		return nil, nil
	}
	snapshot, err = newBuilder(cfg, embedder, logger).Build(ctx, records)
	if err != nil {
		logger.Warn("rebuild failed, starting without an index", zap.Error(err))
		return nil, nil
	}
	logger.Info("index rebuilt in memory", zap.Int("count", snapshot.Len()))
	return snapshot, nil
}

// importCorpus loads the corpus file into an empty metadata store. A missing
// corpus file is not an error when the store already has records.
func importCorpus(ctx context.Context, cfg *config.Config, metadata storage.Storage, logger *zap.Logger) (int, error) {
	count, err := metadata.CountRecords(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		logger.Debug("metadata store already populated", zap.Int64("records", count))
		return 0, nil
	}
	records, err := corpus.ReadFile(cfg.Storage.CorpusPath)
	if err != nil {
		return 0, err
	}
	n, err := metadata.ImportIfEmpty(ctx, records)
	if err != nil {
		return 0, err
	}
	logger.Info("corpus imported", zap.String("path", cfg.Storage.CorpusPath), zap.Int("records", n))
	return n, nil
}
