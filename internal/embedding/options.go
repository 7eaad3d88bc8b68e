package embedding

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// ONNXConfig configures NewONNXEmbedder.
type ONNXConfig struct {
	ModelPath  string
	Dimensions int
	MaxTokens  int
	CacheSize  int
	// OutputName is the model output to read. "last_hidden_state" enables
	// mean pooling; any other name is read as a pooled [1, dim] tensor.
	OutputName string
	MeanPool   bool
}

func (c ONNXConfig) withDefaults() ONNXConfig {
	if c.Dimensions <= 0 {
		c.Dimensions = 384
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 256
	}
	if c.OutputName == "" {
		c.OutputName = "last_hidden_state"
	}
	if c.OutputName == "last_hidden_state" {
		c.MeanPool = true
	}
	return c
}

// Open returns the ONNX embedder for cfg. When the model file is missing or
// ONNX Runtime cannot start, it logs a warning and returns a cached
// MockEmbedder of the same dimensions so the service still runs end to end.
// The second result reports whether the fallback was taken.
func Open(cfg ONNXConfig, logger *zap.Logger) (Embedder, bool) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	e, err := openONNX(cfg)
	if err == nil {
		logger.Info("onnx embedder ready", zap.String("model", cfg.ModelPath), zap.Int("dimensions", cfg.Dimensions))
		return e, false
	}
	logger.Warn("onnx embedder unavailable, using mock embedder", zap.Error(err))
	return NewCachedEmbedder(NewMockEmbedder(cfg.Dimensions), cfg.CacheSize), true
}

func openONNX(cfg ONNXConfig) (Embedder, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("model not found at %s", cfg.ModelPath)
		}
		return nil, err
	}
	e, err := NewONNXEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	return e, nil
}
