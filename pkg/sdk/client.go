package bookmarkd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/bookmarkd/internal/db"
	dbValkey "github.com/kailas-cloud/bookmarkd/internal/db/valkey"
	"github.com/kailas-cloud/bookmarkd/internal/domain"
	"github.com/kailas-cloud/bookmarkd/internal/domain/record"
	sitesrepo "github.com/kailas-cloud/bookmarkd/internal/repository/sites"
	healthuc "github.com/kailas-cloud/bookmarkd/internal/usecase/health"
	searchuc "github.com/kailas-cloud/bookmarkd/internal/usecase/search"
)

const defaultReadinessTimeout = 10 * time.Second

// Internal interfaces, swapped out in tests.
type indexUseCase interface {
	EnsureIndex(ctx context.Context) error
	Upsert(ctx context.Context, records []record.Record) error
	List(ctx context.Context) ([]record.Record, error)
}

type searchUseCase interface {
	SearchTopK(ctx context.Context, query string, topK int) ([]record.Hit, error)
}

// Client is the bookmarkd SDK entry point.
type Client struct {
	store     db.Store
	index     indexUseCase
	searchSvc searchUseCase
	healthSvc healthUseCase
	obs       *observer
}

// New creates a Client and connects to the database.
// The provided context is used for the initial readiness check.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o.apply(cfg)
	}

	if len(cfg.addrs) == 0 {
		return nil, errors.New("bookmarkd: database address required (use WithValkey or WithRedis)")
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	store, err := dbValkey.NewStore(dbValkey.Config{
		Addrs:    cfg.addrs,
		Password: cfg.password,
	})
	if err != nil {
		return nil, fmt.Errorf("bookmarkd: create %s store: %w", cfg.driver, err)
	}

	if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("bookmarkd: database not ready: %w", err)
	}

	return wireClient(store, cfg, obs), nil
}

func wireClient(store db.Store, cfg *clientConfig, obs *observer) *Client {
	var emb domain.Embedder = noopEmbedder{}
	var embHealth healthuc.EmbeddingChecker
	if cfg.embedder != nil {
		adapter := &embedderAdapter{inner: cfg.embedder}
		emb = adapter
		if _, ok := cfg.embedder.(healthChecker); ok {
			embHealth = adapter
		}
	}

	sites := sitesrepo.New(store, emb, emb, sitesrepo.Config{
		KeyPrefix:  cfg.keyPrefix,
		Collection: cfg.collection,
		Namespace:  cfg.namespace,
		Dimensions: cfg.dimensions,
		HNSW: sitesrepo.HNSWConfig{
			M:           cfg.hnswM,
			EFConstruct: cfg.hnswEFConstruct,
		},
	})

	return &Client{
		store:     store,
		index:     sites,
		searchSvc: searchuc.New(sites, cfg.topK),
		healthSvc: healthuc.New(store, nil, embHealth),
		obs:       obs,
	}
}

// Close releases all resources.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks database connectivity.
func (c *Client) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("ping", start, err) }()

	if err = c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// EnsureIndex creates the collection index if it does not exist yet.
func (c *Client) EnsureIndex(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("ensure_index", start, err) }()

	if err = c.index.EnsureIndex(ctx); err != nil {
		return fmt.Errorf("ensure index: %w", err)
	}
	return nil
}

// Search returns up to topK hits for query, best first. topK <= 0 uses the default.
func (c *Client) Search(ctx context.Context, query string, topK int) (hits []Hit, err error) {
	start := time.Now()
	defer func() { c.obs.observe("search", start, err) }()

	found, err := c.searchSvc.SearchTopK(ctx, query, topK)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	hits = make([]Hit, 0, len(found))
	for _, h := range found {
		hits = append(hits, Hit{
			ID:    h.ID,
			Score: h.Score,
			Text:  h.Fields.Text,
			URL:   h.Fields.URL,
			Title: h.Fields.Title,
		})
	}
	return hits, nil
}

// Index embeds and writes records. Records with an existing ID are replaced.
func (c *Client) Index(ctx context.Context, records []Record) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("index", start, err) }()

	recs := make([]record.Record, 0, len(records))
	for _, r := range records {
		rec, rerr := record.New(r.ID, r.Text, r.URL, r.Title)
		if rerr != nil {
			return fmt.Errorf("record %q: %w", r.ID, rerr)
		}
		recs = append(recs, rec)
	}
	if err = c.index.Upsert(ctx, recs); err != nil {
		return fmt.Errorf("index: %w", err)
	}
	return nil
}

// Records lists every record in the collection.
func (c *Client) Records(ctx context.Context) (out []Record, err error) {
	start := time.Now()
	defer func() { c.obs.observe("records", start, err) }()

	recs, err := c.index.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	out = make([]Record, 0, len(recs))
	for _, r := range recs {
		out = append(out, Record{ID: r.ID, Text: r.Text, URL: r.URL, Title: r.Title})
	}
	return out, nil
}

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// embedderAdapter wraps the public Embedder to satisfy domain.Embedder.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("%w: %w", domain.ErrEmbeddingProviderError, err)
	}
	return domain.EmbeddingResult{
		Embedding:    r.Embedding,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

func (a *embedderAdapter) HealthCheck(ctx context.Context) error {
	if hc, ok := a.inner.(healthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // pass-through adapter
	}
	return nil
}

// noopEmbedder is used when no embedder is configured.
type noopEmbedder struct{}

func (noopEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{}, errors.New("bookmarkd: embedder not configured (use WithEmbedder)")
}
