package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/quarrydocs/quarry/internal/chunk"
	"github.com/quarrydocs/quarry/internal/config"
	"github.com/quarrydocs/quarry/internal/embed"
	qerrors "github.com/quarrydocs/quarry/internal/errors"
	"github.com/quarrydocs/quarry/internal/ingest"
	"github.com/quarrydocs/quarry/internal/logging"
	"github.com/quarrydocs/quarry/internal/parse"
	"github.com/quarrydocs/quarry/internal/search"
	"github.com/quarrydocs/quarry/internal/store"
)

// app wires configuration into the stores and engines a command needs.
// Commands that write the index acquire the data-directory lock;
// read-only commands skip it so searches can run alongside ingestion.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	lock     *store.DirLock
	vectors  *store.HNSWStore
	keywords *store.BleveIndex
	metadata *store.SQLiteStore
	embedder embed.Embedder

	ingest *ingest.Engine
	search *search.Engine

	vectorPath string
	cleanups   []func()
}

// openApp builds the full application from configuration.
func openApp(ctx context.Context, writeLock bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	a := &app{cfg: cfg}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	if cfg.Logging.File != "" {
		logCfg.FilePath = cfg.Logging.File
	}
	logger, logCleanup, err := logging.Setup(logCfg)
	if err != nil {
		return nil, err
	}
	a.logger = logger
	a.cleanups = append(a.cleanups, logCleanup)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		a.close()
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	if writeLock {
		a.lock = store.NewDirLock(cfg.DataDir)
		acquired, err := a.lock.TryLock()
		if err != nil {
			a.close()
			return nil, err
		}
		if !acquired {
			a.close()
			return nil, qerrors.New(qerrors.ErrCodeIndexLocked,
				"data directory is locked by another quarry process", nil)
		}
	}

	if err := a.openEmbedder(ctx); err != nil {
		a.close()
		return nil, err
	}
	if err := a.openStores(ctx); err != nil {
		a.close()
		return nil, err
	}
	if err := a.buildEngines(); err != nil {
		a.close()
		return nil, err
	}

	return a, nil
}

func (a *app) openEmbedder(ctx context.Context) error {
	cfg := a.cfg.Embeddings

	var inner embed.Embedder
	if offline || cfg.Provider == "static" {
		inner = embed.NewStaticEmbedder()
	} else {
		httpEmbedder, err := embed.NewHTTPEmbedder(ctx, embed.HTTPConfig{
			Host:       cfg.Host,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
			Timeout:    cfg.Timeout,
		})
		if err != nil {
			a.logger.Warn("embedding_server_unreachable",
				slog.String("host", cfg.Host),
				slog.String("error", err.Error()))
			inner = embed.NewStaticEmbedder()
		} else {
			inner = httpEmbedder
		}
	}

	a.embedder = embed.NewCachedEmbedder(inner, cfg.CacheSize)
	return nil
}

func (a *app) openStores(ctx context.Context) error {
	dims := a.embedder.Dimensions()
	if dims == 0 {
		// HTTP embedders report dimensions lazily; probe once.
		vec, err := a.embedder.Embed(ctx, "dimension probe")
		if err != nil {
			return qerrors.New(qerrors.ErrCodeEmbedUnavailable,
				"cannot determine embedding dimensions", err)
		}
		dims = len(vec)
	}

	vectors, err := store.NewHNSWStore(store.HNSWConfig{Dimensions: dims})
	if err != nil {
		return err
	}
	a.vectors = vectors
	a.vectorPath = filepath.Join(a.cfg.DataDir, "vectors.hnsw")
	if _, err := os.Stat(a.vectorPath); err == nil {
		if err := vectors.Load(a.vectorPath); err != nil {
			return qerrors.New(qerrors.ErrCodeCorruptIndex,
				"load vector index", err)
		}
	}

	keywords, err := store.NewBleveIndex(filepath.Join(a.cfg.DataDir, "keyword.bleve"))
	if err != nil {
		return err
	}
	a.keywords = keywords

	metadata, err := store.NewSQLiteStore(filepath.Join(a.cfg.DataDir, "metadata.db"))
	if err != nil {
		return err
	}
	a.metadata = metadata
	return nil
}

func (a *app) buildEngines() error {
	splitter, err := chunk.NewSplitter(chunk.Options{
		Strategy:            chunk.Strategy(a.cfg.Chunking.Strategy),
		ChunkSize:           a.cfg.Chunking.ChunkSize,
		Overlap:             a.cfg.Chunking.Overlap,
		Separators:          a.cfg.Chunking.Separators,
		SimilarityThreshold: a.cfg.Chunking.SimilarityThreshold,
	}, a.embedder)
	if err != nil {
		return err
	}

	engine, err := ingest.NewEngine(ingest.Config{
		QueueCapacity:  a.cfg.Ingestion.QueueCapacity,
		Workers:        a.cfg.Ingestion.Workers,
		Retention:      a.cfg.Ingestion.Retention,
		EmbedBatchSize: a.cfg.Ingestion.EmbedBatchSize,
	}, ingest.Deps{
		Parsers:  parse.NewRegistry(),
		Splitter: splitter,
		Embedder: a.embedder,
		Vectors:  a.vectors,
		Keywords: a.keywords,
		Metadata: a.metadata,
		Logger:   a.logger,
	})
	if err != nil {
		return err
	}
	engine.Start()
	a.ingest = engine

	var reranker search.Reranker
	if a.cfg.Search.Rerank && a.cfg.Search.RerankEndpoint != "" {
		reranker = search.NewHTTPReranker(search.HTTPRerankerConfig{
			Endpoint: a.cfg.Search.RerankEndpoint,
			Model:    a.cfg.Search.RerankModel,
		})
	}

	a.search = search.NewEngine(search.Config{
		TopK:           a.cfg.Search.TopK,
		RRFConstant:    a.cfg.Search.RRFConstant,
		MinSourceScore: a.cfg.Search.MinSourceScore,
		RerankDepth:    a.cfg.Search.RerankDepth,
		Timeout:        a.cfg.Search.Timeout,
	}, search.Deps{
		Embedder: a.embedder,
		Vectors:  a.vectors,
		Keywords: a.keywords,
		Metadata: a.metadata,
		Reranker: reranker,
		Logger:   a.logger,
	})
	return nil
}

// save persists the vector index. bleve and SQLite write through as they
// go; only the HNSW graph lives in memory.
func (a *app) save() error {
	if a.vectors == nil {
		return nil
	}
	return a.vectors.Save(a.vectorPath)
}

// close releases everything in reverse construction order.
func (a *app) close() {
	if a.ingest != nil {
		a.ingest.Stop()
	}
	if a.metadata != nil {
		_ = a.metadata.Close()
	}
	if a.keywords != nil {
		_ = a.keywords.Close()
	}
	if a.vectors != nil {
		_ = a.vectors.Close()
	}
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.lock != nil {
		_ = a.lock.Unlock()
	}
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
}
