package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/bookmarkd/internal/config"
	"github.com/kailas-cloud/bookmarkd/internal/db"
	"github.com/kailas-cloud/bookmarkd/internal/db/sqldb"
	dbValkey "github.com/kailas-cloud/bookmarkd/internal/db/valkey"
	"github.com/kailas-cloud/bookmarkd/internal/domain"
	logpkg "github.com/kailas-cloud/bookmarkd/internal/logger"
	"github.com/kailas-cloud/bookmarkd/internal/metrics"
	bookmarkrepo "github.com/kailas-cloud/bookmarkd/internal/repository/bookmark"
	"github.com/kailas-cloud/bookmarkd/internal/repository/embcache"
	sitesrepo "github.com/kailas-cloud/bookmarkd/internal/repository/sites"
	"github.com/kailas-cloud/bookmarkd/internal/transport/firecrawl"
	openaiTransport "github.com/kailas-cloud/bookmarkd/internal/transport/openai"
	"github.com/kailas-cloud/bookmarkd/internal/transport/webpage"
	embeddinguc "github.com/kailas-cloud/bookmarkd/internal/usecase/embedding"
	"github.com/kailas-cloud/bookmarkd/internal/usecase/ingest"
	"github.com/kailas-cloud/bookmarkd/internal/version"
)

// app holds the components every subcommand shares.
type app struct {
	env       string
	cfg       config.Config
	logger    *zap.Logger
	store     db.Store
	sql       *sqldb.DB
	embedder  *embeddinguc.InstrumentedEmbedder
	sites     *sitesrepo.Repo
	bookmarks *bookmarkrepo.Repo
}

// newApp loads configuration and opens both stores.
// The caller must call close.
func newApp(ctx context.Context, component string) (*app, error) {
	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	logger = logger.With(zap.String("component", component))

	logger.Info("Starting bookmarkd",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("sql_driver", cfg.SQL.Driver),
	)

	// valkey and redis speak the same protocol; one client serves both.
	store, err := dbValkey.NewStore(dbValkey.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s store: %w", cfg.Database.Driver, err)
	}
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		return nil, fmt.Errorf("database not ready: %w", err)
	}
	logger.Info("Connected to database")

	sqlDB, err := sqldb.Open(ctx, sqldb.Config{
		Driver:       cfg.SQL.Driver,
		DSN:          cfg.SQL.DSN,
		MaxOpenConns: cfg.SQL.MaxOpenConns,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open sql store: %w", err)
	}
	logger.Info("Connected to sql store")

	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterIngestMetrics()

	embedder := buildEmbedder(cfg.Embedding, store, cfg.Storage.KeyPrefix, logger)
	sites := sitesrepo.New(
		store,
		withInstruction(embedder, cfg.Embedding.DocumentInstruction),
		withInstruction(embedder, cfg.Embedding.QueryInstruction),
		sitesrepo.Config{
			KeyPrefix:  cfg.Storage.KeyPrefix,
			Collection: cfg.Index.Name,
			Namespace:  cfg.Index.Namespace,
			Dimensions: cfg.Embedding.Dimensions,
			HNSW: sitesrepo.HNSWConfig{
				M:           cfg.Index.HNSWM,
				EFConstruct: cfg.Index.HNSWEFConstruct,
			},
		},
	)

	if err := sites.EnsureIndex(ctx); err != nil {
		_ = sqlDB.Close()
		store.Close()
		return nil, fmt.Errorf("ensure search index: %w", err)
	}

	return &app{
		env:       env,
		cfg:       cfg,
		logger:    logger,
		store:     store,
		sql:       sqlDB,
		embedder:  embedder,
		sites:     sites,
		bookmarks: bookmarkrepo.New(sqlDB),
	}, nil
}

func (a *app) close() {
	if err := a.sql.Close(); err != nil {
		a.logger.Warn("Failed to close sql store", zap.Error(err))
	}
	a.store.Close()
	_ = a.logger.Sync()
}

// runner builds the ingestion pipeline shared by the inline dispatcher and the queue worker.
func (a *app) runner() *ingest.Runner {
	task := ingest.NewTask(a.bookmarks, a.scraper(), a.sites, ingest.Config{
		Format: a.cfg.Ingest.Format,
		Prompt: a.cfg.Ingest.Prompt,
	})
	return ingest.NewRunner(task, a.store, a.cfg.Storage.KeyPrefix, a.cfg.TaskBudget(), a.logger)
}

func (a *app) scraper() domain.Scraper {
	timeout := time.Duration(a.cfg.Scraper.TimeoutSec) * time.Second
	if a.cfg.Scraper.Provider == "local" {
		return webpage.New(webpage.Config{
			Timeout:      timeout,
			UserAgent:    a.cfg.Scraper.UserAgent,
			MaxBytes:     a.cfg.Scraper.MaxBytes,
			AllowPrivate: a.cfg.Scraper.AllowPrivate,
			Logger:       a.logger,
		})
	}
	return firecrawl.New(firecrawl.Config{
		APIKey:  a.cfg.Scraper.APIKey,
		BaseURL: a.cfg.Scraper.BaseURL,
		Timeout: timeout,
		Logger:  a.logger,
	})
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented.
// Instructions wrap the chain per direction so cache keys include them.
func buildEmbedder(
	cfg config.EmbeddingConfig, store db.KVStore, keyPrefix string, logger *zap.Logger,
) *embeddinguc.InstrumentedEmbedder {
	base := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
		Provider:   cfg.Provider,
		Logger:     logger,
	})

	var embedder domain.Embedder = base
	if cfg.Cache {
		embedder = embcache.New(base, store, keyPrefix, metrics.EmbeddingCacheTotal, logger,
			embcache.WithModel(cfg.Model))
	}

	logger.Info("Embedder created",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.Int("dimensions", cfg.Dimensions),
		zap.Bool("cache", cfg.Cache),
	)
	return embeddinguc.NewInstrumentedEmbedder(embedder, cfg.Provider, cfg.Model, logger)
}

func withInstruction(inner domain.Embedder, instruction string) domain.Embedder {
	if instruction == "" {
		return inner
	}
	return domain.NewInstructionEmbedder(inner, instruction)
}
