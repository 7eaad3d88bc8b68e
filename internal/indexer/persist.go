package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/statsearch/internal/artifact"
	"github.com/hyperjump/statsearch/internal/models"
	"github.com/hyperjump/statsearch/internal/vector"
)

// Persist encodes store and writes the vector and id artifacts under a new
// build directory, then the manifest naming them. Encoding completes before
// the first write. The manifest write replaces the previous build, whose
// artifacts are then removed. When a write fails, the new build's artifacts
// are deleted and the previous build is left untouched.
func Persist(ctx context.Context, store *vector.Store, dst artifact.Store, model string, logger *zap.Logger) (*Manifest, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	vectorBytes, idBytes := vector.Encode(store)
	manifest := newManifest(store, model, vectorBytes, idBytes)
	manifestBytes, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	previous, err := readManifest(ctx, dst)
	if err != nil {
		logger.Warn("previous manifest unreadable, its artifacts will be kept", zap.Error(err))
	}

	writes := []struct {
		name string
		data []byte
	}{
		{manifest.VectorFile, vectorBytes},
		{manifest.IDFile, idBytes},
		{ManifestArtifact, manifestBytes},
	}
	for i, w := range writes {
		if err := dst.Put(ctx, w.name, w.data); err != nil {
			for _, done := range writes[:i] {
				removeArtifact(ctx, dst, done.name, logger)
			}
			return nil, fmt.Errorf("write %s: %w", w.name, err)
		}
	}
	if previous != nil {
		oldVectors, oldIDs := previous.artifacts()
		for _, name := range []string{oldVectors, oldIDs} {
			if name != manifest.VectorFile && name != manifest.IDFile {
				removeArtifact(ctx, dst, name, logger)
			}
		}
	}
	logger.Info("index persisted",
		zap.String("build_id", manifest.BuildID),
		zap.String("model", manifest.Model),
		zap.Int("count", manifest.Count),
		zap.Int("vector_bytes", manifest.VectorBytes),
	)
	return &manifest, nil
}

func removeArtifact(ctx context.Context, dst artifact.Store, name string, logger *zap.Logger) {
	if err := dst.Delete(context.WithoutCancel(ctx), name); err != nil {
		logger.Warn("failed to remove artifact", zap.String("artifact", name), zap.Error(err))
	}
}

// readManifest returns the current manifest, or nil when there is none.
func readManifest(ctx context.Context, src artifact.Store) (*Manifest, error) {
	data, err := src.Get(ctx, ManifestArtifact)
	if errors.Is(err, artifact.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}
	return decodeManifest(data)
}

// BuildAndPersist builds the index from records and persists it. Nothing is
// written unless the build succeeds.
func (b *Builder) BuildAndPersist(ctx context.Context, records []models.Record, dst artifact.Store, model string) (*vector.Store, *Manifest, error) {
	store, err := b.Build(ctx, records)
	if err != nil {
		return nil, nil, err
	}
	manifest, err := Persist(ctx, store, dst, model, b.logger)
	if err != nil {
		return nil, nil, err
	}
	return store, manifest, nil
}

// Load reads and decodes the persisted index. model names the embedder that
// will query it; a manifest recording a different model is ErrCorruptIndex.
// An empty model skips that check. A missing manifest is tolerated; dimension
// is then the only source of the row width. Missing vector or id artifacts
// yield an error satisfying errors.Is(err, artifact.ErrNotFound).
func Load(ctx context.Context, src artifact.Store, dimension int, model string) (*vector.Store, *Manifest, error) {
	manifest, err := readManifest(ctx, src)
	if err != nil {
		return nil, nil, err
	}
	vectorName, idName := VectorsArtifact, IDsArtifact
	if manifest != nil {
		if err := manifest.checkModel(model); err != nil {
			return nil, nil, err
		}
		vectorName, idName = manifest.artifacts()
	}

	vectorBytes, err := src.Get(ctx, vectorName)
	if err != nil {
		return nil, nil, fmt.Errorf("load index: %w", err)
	}
	idBytes, err := src.Get(ctx, idName)
	if err != nil {
		return nil, nil, fmt.Errorf("load index: %w", err)
	}
	if manifest != nil {
		if err := manifest.verify(dimension, vectorBytes, idBytes); err != nil {
			return nil, nil, err
		}
	}

	store, err := vector.Decode(vectorBytes, idBytes, dimension)
	if err != nil {
		return nil, nil, err
	}
	if manifest != nil && manifest.Count != store.Len() {
		return nil, nil, fmt.Errorf("%w: manifest count %d, decoded %d", vector.ErrCorruptIndex, manifest.Count, store.Len())
	}
	return store, manifest, nil
}
