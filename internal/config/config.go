// Package config loads and validates Quarry configuration.
//
// Configuration is resolved in priority order:
//  1. Explicit path passed on the command line
//  2. .quarry.yaml in the working directory
//  3. ~/.config/quarry/config.yaml
//  4. Built-in defaults
//
// A few environment variables override file values (QUARRY_EMBED_HOST,
// QUARRY_LOG_LEVEL) so deployments can repoint the embedding backend
// without editing files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	qerrors "github.com/quarrydocs/quarry/internal/errors"
)

// Config represents the complete Quarry configuration.
type Config struct {
	Version    int              `yaml:"version"`
	DataDir    string           `yaml:"data_dir"`
	Ingestion  IngestionConfig  `yaml:"ingestion"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Search     SearchConfig     `yaml:"search"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// IngestionConfig configures the ingestion engine.
type IngestionConfig struct {
	// QueueCapacity bounds outstanding (non-terminal) jobs. Submissions
	// beyond this fail fast with a capacity error.
	QueueCapacity int `yaml:"queue_capacity"`

	// Workers is the worker pool size. Default: NumCPU/2, minimum 1.
	Workers int `yaml:"workers"`

	// Retention is how long terminal jobs stay visible to observers
	// before the registry prunes them.
	Retention time.Duration `yaml:"retention"`

	// EmbedBatchSize is the number of chunks embedded per batch during
	// the embedding phase.
	EmbedBatchSize int `yaml:"embed_batch_size"`
}

// ChunkingConfig configures the chunking strategy.
type ChunkingConfig struct {
	// Strategy selects the splitter: "fixed", "recursive", or "semantic".
	Strategy string `yaml:"strategy"`

	// ChunkSize is the target chunk size in characters.
	ChunkSize int `yaml:"chunk_size"`

	// Overlap is the window overlap in characters (fixed strategy).
	Overlap int `yaml:"overlap"`

	// Separators is the priority-ordered separator list (recursive strategy).
	Separators []string `yaml:"separators"`

	// SimilarityThreshold is the cosine-similarity boundary for grouping
	// adjacent sentences (semantic strategy).
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedder: "http" (Ollama-compatible API) or
	// "static" (offline hash embedder).
	Provider   string        `yaml:"provider"`
	Host       string        `yaml:"host"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	BatchSize  int           `yaml:"batch_size"`
	Timeout    time.Duration `yaml:"timeout"`

	// CacheSize is the LRU embedding cache capacity (entries).
	CacheSize int `yaml:"cache_size"`
}

// SearchConfig configures hybrid search.
type SearchConfig struct {
	// TopK is the default number of results.
	TopK int `yaml:"top_k"`

	// MinScore drops results below this final score. Zero disables.
	MinScore float64 `yaml:"min_score"`

	// RRFConstant is the RRF smoothing parameter k (default: 60).
	RRFConstant int `yaml:"rrf_constant"`

	// MinSourceScore drops vector hits below this similarity before fusion.
	MinSourceScore float64 `yaml:"min_source_score"`

	// Timeout is the maximum duration of one search call.
	Timeout time.Duration `yaml:"timeout"`

	// Rerank enables the cross-encoder second pass.
	Rerank         bool   `yaml:"rerank"`
	RerankEndpoint string `yaml:"rerank_endpoint"`
	RerankModel    string `yaml:"rerank_model"`

	// RerankDepth bounds the shortlist sent to the cross-encoder.
	RerankDepth int `yaml:"rerank_depth"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the built-in default configuration.
func Default() *Config {
	workers := runtime.NumCPU() / 2
	if workers < 1 {
		workers = 1
	}

	return &Config{
		Version: 1,
		DataDir: defaultDataDir(),
		Ingestion: IngestionConfig{
			QueueCapacity:  32,
			Workers:        workers,
			Retention:      5 * time.Minute,
			EmbedBatchSize: 32,
		},
		Chunking: ChunkingConfig{
			Strategy:            "recursive",
			ChunkSize:           1200,
			Overlap:             150,
			Separators:          []string{"\n\n", "\n", ". ", " "},
			SimilarityThreshold: 0.72,
		},
		Embeddings: EmbeddingsConfig{
			Provider:  "http",
			Host:      "http://localhost:11434",
			Model:     "nomic-embed-text",
			BatchSize: 32,
			Timeout:   60 * time.Second,
			CacheSize: 1000,
		},
		Search: SearchConfig{
			TopK:        10,
			RRFConstant: 60,
			Timeout:     10 * time.Second,
			RerankDepth: 20,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the given path, or from the standard
// locations when path is empty. Missing files fall back to defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	resolved, err := resolvePath(path)
	if err != nil {
		return nil, err
	}

	if resolved != "" {
		data, err := os.ReadFile(resolved)
		if err != nil {
			return nil, qerrors.Wrap(qerrors.ErrCodeConfigNotFound, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, qerrors.New(qerrors.ErrCodeConfigInvalid,
				fmt.Sprintf("parse %s: %v", resolved, err), err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for inconsistent values.
func (c *Config) Validate() error {
	if c.Ingestion.QueueCapacity < 1 {
		return qerrors.New(qerrors.ErrCodeConfigInvalid, "ingestion.queue_capacity must be >= 1", nil)
	}
	if c.Ingestion.Workers < 1 {
		return qerrors.New(qerrors.ErrCodeConfigInvalid, "ingestion.workers must be >= 1", nil)
	}
	if c.Ingestion.Retention <= 0 {
		return qerrors.New(qerrors.ErrCodeConfigInvalid, "ingestion.retention must be positive", nil)
	}
	if c.Chunking.ChunkSize < 1 {
		return qerrors.New(qerrors.ErrCodeConfigInvalid, "chunking.chunk_size must be >= 1", nil)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.ChunkSize {
		return qerrors.New(qerrors.ErrCodeConfigInvalid, "chunking.overlap must be in [0, chunk_size)", nil)
	}
	switch c.Chunking.Strategy {
	case "fixed", "recursive", "semantic":
	default:
		return qerrors.New(qerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("chunking.strategy %q unknown (fixed, recursive, semantic)", c.Chunking.Strategy), nil)
	}
	switch c.Embeddings.Provider {
	case "http", "static":
	default:
		return qerrors.New(qerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("embeddings.provider %q unknown (http, static)", c.Embeddings.Provider), nil)
	}
	if c.Search.TopK < 1 {
		return qerrors.New(qerrors.ErrCodeConfigInvalid, "search.top_k must be >= 1", nil)
	}
	if c.Search.RRFConstant < 1 {
		return qerrors.New(qerrors.ErrCodeConfigInvalid, "search.rrf_constant must be >= 1", nil)
	}
	if c.Search.RerankDepth < 1 {
		return qerrors.New(qerrors.ErrCodeConfigInvalid, "search.rerank_depth must be >= 1", nil)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("QUARRY_EMBED_HOST"); v != "" {
		c.Embeddings.Host = v
	}
	if v := os.Getenv("QUARRY_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// resolvePath returns the config file to read, or "" when none exists.
func resolvePath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", qerrors.New(qerrors.ErrCodeConfigNotFound,
				fmt.Sprintf("config file not found: %s", explicit), err)
		}
		return explicit, nil
	}

	if _, err := os.Stat(".quarry.yaml"); err == nil {
		return ".quarry.yaml", nil
	}

	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, ".config", "quarry", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".quarry")
	}
	return filepath.Join(home, ".quarry")
}
