// Package sites stores page records in a namespaced Valkey FT vector index.
package sites

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kailas-cloud/bookmarkd/internal/db"
	"github.com/kailas-cloud/bookmarkd/internal/domain"
	"github.com/kailas-cloud/bookmarkd/internal/domain/record"
)

const (
	fieldText   = "text"
	fieldURL    = "url"
	fieldTitle  = "title"
	fieldVector = "__vector"
)

// store is the consumer interface for the search collection (ISP).
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// HNSWConfig holds HNSW index parameters.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Config describes one namespace of a collection.
type Config struct {
	KeyPrefix  string
	Collection string
	Namespace  string
	Dimensions int
	HNSW       HNSWConfig
}

// Repo implements the search index adapter.
// Documents and queries may use different embedders (asymmetric instructions).
type Repo struct {
	store       store
	docEmbedder domain.Embedder
	qryEmbedder domain.Embedder
	cfg         Config
}

// New creates a search index repository.
func New(s store, docEmbedder, queryEmbedder domain.Embedder, cfg Config) *Repo {
	return &Repo{store: s, docEmbedder: docEmbedder, qryEmbedder: queryEmbedder, cfg: cfg}
}

// EnsureIndex creates the FT index for the namespace. An existing index is fine.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, r.indexName())
	if err != nil {
		return fmt.Errorf("%w: inspect index %s: %w", domain.ErrSearchIndex, r.indexName(), err)
	}
	if exists {
		return nil
	}

	def, err := db.NewIndex(r.indexName()).
		Prefix(r.keyPrefix()).
		Text(fieldTitle).
		Tag(fieldURL).
		VectorHNSW(fieldVector, "vector", r.cfg.Dimensions, db.DistanceCosine, r.cfg.HNSW.M, r.cfg.HNSW.EFConstruct).
		Build()
	if err != nil {
		return fmt.Errorf("build index %s: %w", r.indexName(), err)
	}

	if err := r.store.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return nil
		}
		return fmt.Errorf("%w: create index %s: %w", domain.ErrSearchIndex, def.Name, err)
	}
	return nil
}

// Reindex drops the FT index and creates it again from the current config.
// Stored hashes are kept and get indexed by the new definition.
func (r *Repo) Reindex(ctx context.Context) error {
	if err := r.store.DropIndex(ctx, r.indexName()); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return fmt.Errorf("%w: drop index %s: %w", domain.ErrSearchIndex, r.indexName(), err)
	}
	return r.EnsureIndex(ctx)
}

// Upsert embeds every record's text and writes all hashes in one round trip.
// A record with an existing id replaces the stored one.
func (r *Repo) Upsert(ctx context.Context, records []record.Record) error {
	if len(records) == 0 {
		return nil
	}

	items := make([]db.HashSetItem, 0, len(records))
	for _, rec := range records {
		res, err := r.docEmbedder.Embed(ctx, rec.Text)
		if err != nil {
			return fmt.Errorf("%w: embed record %s: %w", domain.ErrSearchIndex, rec.ID, err)
		}
		items = append(items, db.HashSetItem{
			Key: r.recordKey(rec.ID),
			Fields: map[string]string{
				fieldText:   rec.Text,
				fieldURL:    rec.URL,
				fieldTitle:  rec.Title,
				fieldVector: db.EncodeVector(res.Embedding),
			},
		})
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("%w: upsert %d records: %w", domain.ErrSearchIndex, len(items), err)
	}
	return nil
}

// Query returns the topK records closest to text, best first.
func (r *Repo) Query(ctx context.Context, text string, topK int) ([]record.Hit, error) {
	res, err := r.qryEmbedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", domain.ErrSearchIndex, err)
	}

	result, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.indexName(),
		Vector:       res.Embedding,
		K:            topK,
		ReturnFields: []string{fieldText, fieldURL, fieldTitle},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: knn search: %w", domain.ErrSearchIndex, err)
	}

	hits := make([]record.Hit, 0, len(result.Entries))
	for _, e := range result.Entries {
		hits = append(hits, record.Hit{
			ID:     r.extractID(e.Key),
			Score:  e.Score,
			Fields: fieldsFrom(e.Fields),
		})
	}
	record.SortByScore(hits)
	return hits, nil
}

// List walks every record of the namespace. Order is unspecified.
func (r *Repo) List(ctx context.Context) ([]record.Record, error) {
	keys, err := r.store.Scan(ctx, r.keyPrefix()+"*")
	if err != nil {
		return nil, fmt.Errorf("%w: scan: %w", domain.ErrSearchIndex, err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	maps, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch records: %w", domain.ErrSearchIndex, err)
	}

	out := make([]record.Record, 0, len(keys))
	for i, m := range maps {
		if len(m) == 0 {
			continue
		}
		f := fieldsFrom(m)
		out = append(out, record.Record{ID: r.extractID(keys[i]), Text: f.Text, URL: f.URL, Title: f.Title})
	}
	return out, nil
}

func fieldsFrom(m map[string]string) record.Fields {
	return record.Fields{Text: m[fieldText], URL: m[fieldURL], Title: m[fieldTitle]}
}

func (r *Repo) keyPrefix() string {
	return fmt.Sprintf("%s%s:%s:", r.cfg.KeyPrefix, r.cfg.Collection, r.cfg.Namespace)
}

func (r *Repo) recordKey(id string) string {
	return r.keyPrefix() + id
}

func (r *Repo) indexName() string {
	return r.keyPrefix() + "idx"
}

func (r *Repo) extractID(key string) string {
	return strings.TrimPrefix(key, r.keyPrefix())
}
