package sites

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/bookmarkd/internal/db"
	"github.com/kailas-cloud/bookmarkd/internal/domain"
	"github.com/kailas-cloud/bookmarkd/internal/domain/record"
)

// --- EnsureIndex ---

func TestEnsureIndex_Definition(t *testing.T) {
	repo, ms, _ := newTestRepo(t)

	var got *db.IndexDefinition
	ms.createIndexFn = func(_ context.Context, def *db.IndexDefinition) error {
		got = def
		return nil
	}

	if err := repo.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "bookmarkd:sites:__default__:idx" {
		t.Errorf("unexpected index name %q", got.Name)
	}
	if len(got.Prefixes) != 1 || got.Prefixes[0] != "bookmarkd:sites:__default__:" {
		t.Errorf("unexpected prefixes %v", got.Prefixes)
	}
	vec := got.Fields[len(got.Fields)-1]
	if vec.Type != db.IndexFieldVector || vec.VectorDim != 4 || vec.Alias != "vector" {
		t.Errorf("unexpected vector field %+v", vec)
	}
}

func TestEnsureIndex_AlreadyExists(t *testing.T) {
	repo, ms, _ := newTestRepo(t)
	ms.createIndexFn = func(_ context.Context, _ *db.IndexDefinition) error {
		return db.ErrIndexExists
	}

	if err := repo.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("existing index should not fail: %v", err)
	}
}

func TestEnsureIndex_SkipsCreateWhenPresent(t *testing.T) {
	repo, ms, _ := newTestRepo(t)
	var asked string
	ms.indexExistsFn = func(_ context.Context, name string) (bool, error) {
		asked = name
		return true, nil
	}
	ms.createIndexFn = func(_ context.Context, _ *db.IndexDefinition) error {
		t.Fatal("create must not run for an existing index")
		return nil
	}

	if err := repo.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if asked != "bookmarkd:sites:__default__:idx" {
		t.Errorf("unexpected index name %q", asked)
	}
}

func TestEnsureIndex_InspectError(t *testing.T) {
	repo, ms, _ := newTestRepo(t)
	ms.indexExistsFn = func(_ context.Context, _ string) (bool, error) {
		return false, errors.New("connection reset")
	}

	err := repo.EnsureIndex(context.Background())
	if !errors.Is(err, domain.ErrSearchIndex) {
		t.Fatalf("expected ErrSearchIndex, got %v", err)
	}
}

func TestEnsureIndex_StoreError(t *testing.T) {
	repo, ms, _ := newTestRepo(t)
	ms.createIndexFn = func(_ context.Context, _ *db.IndexDefinition) error {
		return errors.New("connection reset")
	}

	err := repo.EnsureIndex(context.Background())
	if !errors.Is(err, domain.ErrSearchIndex) {
		t.Fatalf("expected ErrSearchIndex, got %v", err)
	}
}

// --- Reindex ---

func TestReindex_DropsThenCreates(t *testing.T) {
	repo, ms, _ := newTestRepo(t)
	var calls []string
	ms.dropIndexFn = func(_ context.Context, name string) error {
		calls = append(calls, "drop "+name)
		return nil
	}
	ms.createIndexFn = func(_ context.Context, def *db.IndexDefinition) error {
		calls = append(calls, "create "+def.Name)
		return nil
	}

	if err := repo.Reindex(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"drop bookmarkd:sites:__default__:idx", "create bookmarkd:sites:__default__:idx"}
	if len(calls) != 2 || calls[0] != want[0] || calls[1] != want[1] {
		t.Errorf("expected %v, got %v", want, calls)
	}
}

func TestReindex_MissingIndex(t *testing.T) {
	repo, ms, _ := newTestRepo(t)
	ms.dropIndexFn = func(_ context.Context, _ string) error { return db.ErrIndexNotFound }
	created := false
	ms.createIndexFn = func(_ context.Context, _ *db.IndexDefinition) error {
		created = true
		return nil
	}

	if err := repo.Reindex(context.Background()); err != nil {
		t.Fatalf("missing index should not fail: %v", err)
	}
	if !created {
		t.Error("expected index to be created")
	}
}

func TestReindex_DropError(t *testing.T) {
	repo, ms, _ := newTestRepo(t)
	ms.dropIndexFn = func(_ context.Context, _ string) error { return errors.New("boom") }

	if err := repo.Reindex(context.Background()); !errors.Is(err, domain.ErrSearchIndex) {
		t.Fatalf("expected ErrSearchIndex, got %v", err)
	}
}

// --- Upsert ---

func TestUpsert_WritesFields(t *testing.T) {
	repo, ms, emb := newTestRepo(t)

	var items []db.HashSetItem
	ms.hsetMultiFn = func(_ context.Context, it []db.HashSetItem) error {
		items = it
		return nil
	}

	rec := record.Record{ID: "r1", Text: "a page about go", URL: "https://go.dev", Title: "Go"}
	if err := repo.Upsert(context.Background(), []record.Record{rec}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].Key != "bookmarkd:sites:__default__:r1" {
		t.Errorf("unexpected key %q", items[0].Key)
	}
	f := items[0].Fields
	if f["text"] != rec.Text || f["url"] != rec.URL || f["title"] != rec.Title {
		t.Errorf("unexpected fields %v", f)
	}
	if len(f["__vector"]) != 16 {
		t.Errorf("expected 16-byte vector blob, got %d", len(f["__vector"]))
	}
	if len(emb.texts) != 1 || emb.texts[0] != rec.Text {
		t.Errorf("expected text to be embedded, got %v", emb.texts)
	}
}

func TestUpsert_EmbedError(t *testing.T) {
	repo, ms, emb := newTestRepo(t)
	emb.err = domain.ErrEmbeddingProviderError
	ms.hsetMultiFn = func(_ context.Context, _ []db.HashSetItem) error {
		t.Error("nothing should be written when embedding fails")
		return nil
	}

	err := repo.Upsert(context.Background(), []record.Record{{ID: "r1", Text: "x"}})
	if !errors.Is(err, domain.ErrSearchIndex) || !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected wrapped ErrSearchIndex and provider error, got %v", err)
	}
}

func TestUpsert_StoreError(t *testing.T) {
	repo, ms, _ := newTestRepo(t)
	ms.hsetMultiFn = func(_ context.Context, _ []db.HashSetItem) error {
		return errors.New("OOM")
	}

	err := repo.Upsert(context.Background(), []record.Record{{ID: "r1", Text: "x"}})
	if !errors.Is(err, domain.ErrSearchIndex) {
		t.Fatalf("expected ErrSearchIndex, got %v", err)
	}
}

// --- Query ---

func TestQuery_SortsAndStripsPrefix(t *testing.T) {
	repo, ms, _ := newTestRepo(t)

	var q *db.KNNQuery
	ms.searchKNNFn = func(_ context.Context, query *db.KNNQuery) (*db.SearchResult, error) {
		q = query
		return &db.SearchResult{Total: 3, Entries: []db.SearchEntry{
			{Key: "bookmarkd:sites:__default__:b", Score: 0.4, Fields: map[string]string{"url": "https://b"}},
			{Key: "bookmarkd:sites:__default__:a", Score: 0.9, Fields: map[string]string{"url": "https://a", "title": "A"}},
			{Key: "bookmarkd:sites:__default__:c", Score: 0.4, Fields: map[string]string{"url": "https://c"}},
		}}, nil
	}

	hits, err := repo.Query(context.Background(), "golang", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if q.IndexName != "bookmarkd:sites:__default__:idx" || q.K != 10 {
		t.Errorf("unexpected query %+v", q)
	}
	want := []string{"a", "b", "c"}
	for i, id := range want {
		if hits[i].ID != id {
			t.Fatalf("hit %d: expected %s, got %s", i, id, hits[i].ID)
		}
	}
	if hits[0].Fields.Title != "A" || hits[0].Fields.URL != "https://a" {
		t.Errorf("unexpected fields %+v", hits[0].Fields)
	}
}

func TestQuery_SearchError(t *testing.T) {
	repo, ms, _ := newTestRepo(t)
	ms.searchKNNFn = func(_ context.Context, _ *db.KNNQuery) (*db.SearchResult, error) {
		return nil, errors.New("index missing")
	}

	if _, err := repo.Query(context.Background(), "x", 5); !errors.Is(err, domain.ErrSearchIndex) {
		t.Fatalf("expected ErrSearchIndex, got %v", err)
	}
}

// --- List ---

func TestList(t *testing.T) {
	repo, ms, _ := newTestRepo(t)

	ms.scanFn = func(_ context.Context, pattern string) ([]string, error) {
		if pattern != "bookmarkd:sites:__default__:*" {
			t.Errorf("unexpected pattern %q", pattern)
		}
		return []string{"bookmarkd:sites:__default__:r1", "bookmarkd:sites:__default__:gone"}, nil
	}
	ms.hgetAllMultiFn = func(_ context.Context, keys []string) ([]map[string]string, error) {
		return []map[string]string{
			{"text": "t", "url": "https://x.example", "title": "X"},
			{},
		}, nil
	}

	recs, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0].ID != "r1" || recs[0].URL != "https://x.example" || recs[0].Title != "X" {
		t.Errorf("unexpected record %+v", recs[0])
	}
}
