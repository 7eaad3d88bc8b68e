package indexer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/hyperjump/statsearch/internal/vector"
)

// Artifact names. A build writes its vector and id artifacts under a
// directory named after its build id; the manifest at the root names them.
// Builds without a manifest keep both at the root.
const (
	VectorsArtifact  = "vectors.f32"
	IDsArtifact      = "ids.i64"
	ManifestArtifact = "manifest.json"
)

// Manifest describes one persisted index build.
type Manifest struct {
	BuildID      string    `json:"build_id"`
	VectorFile   string    `json:"vector_artifact,omitempty"`
	IDFile       string    `json:"id_artifact,omitempty"`
	Dimension    int       `json:"dimension"`
	Count        int       `json:"count"`
	Model        string    `json:"model,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	VectorBytes  int       `json:"vector_bytes"`
	IDBytes      int       `json:"id_bytes"`
	VectorSHA256 string    `json:"vector_sha256"`
	IDSHA256     string    `json:"id_sha256"`
}

// newManifest describes the encoded artifacts of store.
func newManifest(store *vector.Store, model string, vectorBytes, idBytes []byte) Manifest {
	buildID := uuid.New().String()
	return Manifest{
		BuildID:      buildID,
		VectorFile:   path.Join(buildID, VectorsArtifact),
		IDFile:       path.Join(buildID, IDsArtifact),
		Dimension:    store.Dimension(),
		Count:        store.Len(),
		Model:        model,
		CreatedAt:    time.Now().UTC(),
		VectorBytes:  len(vectorBytes),
		IDBytes:      len(idBytes),
		VectorSHA256: checksum(vectorBytes),
		IDSHA256:     checksum(idBytes),
	}
}

// artifacts returns the names of the vector and id artifacts m describes.
func (m *Manifest) artifacts() (vectors, ids string) {
	vectors, ids = VectorsArtifact, IDsArtifact
	if m.VectorFile != "" {
		vectors = m.VectorFile
	}
	if m.IDFile != "" {
		ids = m.IDFile
	}
	return vectors, ids
}

// checkModel reports ErrCorruptIndex when the index was embedded by a
// different model than the one that will embed queries. An empty model
// skips the check.
func (m *Manifest) checkModel(model string) error {
	if model == "" || m.Model == model {
		return nil
	}
	return fmt.Errorf("%w: index built with model %q, serving %q", vector.ErrCorruptIndex, m.Model, model)
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// verify reports ErrCorruptIndex when the artifacts disagree with m.
func (m *Manifest) verify(dimension int, vectorBytes, idBytes []byte) error {
	switch {
	case m.Dimension != dimension:
		return fmt.Errorf("%w: manifest dimension %d, expected %d", vector.ErrCorruptIndex, m.Dimension, dimension)
	case m.VectorBytes != len(vectorBytes):
		return fmt.Errorf("%w: vector artifact is %d bytes, manifest says %d", vector.ErrCorruptIndex, len(vectorBytes), m.VectorBytes)
	case m.IDBytes != len(idBytes):
		return fmt.Errorf("%w: id artifact is %d bytes, manifest says %d", vector.ErrCorruptIndex, len(idBytes), m.IDBytes)
	case m.VectorSHA256 != "" && m.VectorSHA256 != checksum(vectorBytes):
		return fmt.Errorf("%w: vector artifact checksum mismatch", vector.ErrCorruptIndex)
	case m.IDSHA256 != "" && m.IDSHA256 != checksum(idBytes):
		return fmt.Errorf("%w: id artifact checksum mismatch", vector.ErrCorruptIndex)
	}
	return nil
}

func decodeManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: manifest: %w", vector.ErrCorruptIndex, err)
	}
	return &m, nil
}
