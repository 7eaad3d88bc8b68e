// Package config provides configuration loading and structs for the statsearch server and builder.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Artifacts ArtifactConfig  `yaml:"artifacts"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// StreamDelay paces events on the streaming endpoint. Unset means 100ms;
	// a negative value disables pacing.
	StreamDelay time.Duration `yaml:"stream_delay"`
}

// StorageConfig holds paths for the metadata database, the source corpus and
// the local artifact directory.
type StorageConfig struct {
	DatabasePath   string `yaml:"database_path"`
	CorpusPath     string `yaml:"corpus_path"`
	ArtifactDir    string `yaml:"artifact_dir"`
	WatchArtifacts bool   `yaml:"watch_artifacts"`
}

// Artifact backends.
const (
	BackendLocal = "local"
	BackendMinIO = "minio"
	BackendS3    = "s3"
)

// ArtifactConfig selects where index artifacts are written and read.
type ArtifactConfig struct {
	Backend   string `yaml:"backend"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// EmbeddingConfig holds ONNX embedder and batching settings.
type EmbeddingConfig struct {
	ModelPath   string `yaml:"model_path"`
	ModelName   string `yaml:"model_name"`
	Dimensions  int    `yaml:"dimensions"`
	MaxTokens   int    `yaml:"max_tokens"`
	CacheSize   int    `yaml:"cache_size"`
	BatchSize   int    `yaml:"batch_size"`
	Concurrency int    `yaml:"concurrency"`
	// AllowMock lets "statsearch build" persist an index embedded with the
	// mock embedder when the model cannot be loaded.
	AllowMock bool `yaml:"allow_mock"`
}

// Load failure policies.
const (
	OnLoadFailureRebuild = "rebuild"
	OnLoadFailureDisable = "disable"
	OnLoadFailureFail    = "fail"
)

// SearchConfig holds query settings.
type SearchConfig struct {
	DefaultLimit  int    `yaml:"default_limit"`
	MaxLimit      int    `yaml:"max_limit"`
	StreamLimit   int    `yaml:"stream_limit"`
	FastMode      bool   `yaml:"fast_mode"`
	OnLoadFailure string `yaml:"on_load_failure"`
}

// Load reads and parses the config file at path, applies environment
// overrides, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed, or if a value is invalid.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyEnv(&cfg, os.Getenv)
	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.CorpusPath = expandPath(cfg.Storage.CorpusPath, configDir)
	cfg.Storage.ArtifactDir = expandPath(cfg.Storage.ArtifactDir, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ApplyEnv overrides config values from STATSEARCH_* environment variables.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if v := strings.ToLower(strings.TrimSpace(getenv("STATSEARCH_FAST_MODE"))); v != "" {
		cfg.Search.FastMode = v == "true" || v == "1" || v == "yes"
	}
	if v := strings.TrimSpace(getenv("STATSEARCH_ON_LOAD_FAILURE")); v != "" {
		cfg.Search.OnLoadFailure = strings.ToLower(v)
	}
	if v := strings.TrimSpace(getenv("STATSEARCH_ARTIFACT_BACKEND")); v != "" {
		cfg.Artifacts.Backend = strings.ToLower(v)
	}
}

// Validate reports configuration values that cannot be used.
func (c *Config) Validate() error {
	switch c.Search.OnLoadFailure {
	case OnLoadFailureRebuild, OnLoadFailureDisable, OnLoadFailureFail:
	default:
		return fmt.Errorf("invalid search.on_load_failure %q (supported: rebuild, disable, fail)", c.Search.OnLoadFailure)
	}
	switch c.Artifacts.Backend {
	case BackendLocal:
	case BackendMinIO, BackendS3:
		if c.Artifacts.Bucket == "" {
			return fmt.Errorf("artifacts.bucket is required for backend %q", c.Artifacts.Backend)
		}
	default:
		return fmt.Errorf("invalid artifacts.backend %q (supported: local, minio, s3)", c.Artifacts.Backend)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive")
	}
	return nil
}

// LocalArtifactDir returns the artifact directory when artifacts live on the
// local file system, or "" for remote backends.
func (c *Config) LocalArtifactDir() string {
	if c.Artifacts.Backend == BackendLocal || c.Artifacts.Backend == "" {
		return c.Storage.ArtifactDir
	}
	return ""
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
