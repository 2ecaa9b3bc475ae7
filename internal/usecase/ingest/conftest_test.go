package ingest

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/kailas-cloud/bookmarkd/internal/domain"
	"github.com/kailas-cloud/bookmarkd/internal/domain/record"
	"github.com/kailas-cloud/bookmarkd/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterIngestMetrics()
	os.Exit(m.Run())
}

// --- Mocks ---

type memStore struct {
	mu        sync.Mutex
	rows      map[string]string
	existsErr error
	createErr error
}

func newMemStore() *memStore { return &memStore{rows: map[string]string{}} }

func (m *memStore) Exists(_ context.Context, url string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.existsErr != nil {
		return false, m.existsErr
	}
	_, ok := m.rows[url]
	return ok, nil
}

func (m *memStore) Create(_ context.Context, url, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.rows[url]; ok {
		return domain.ErrConflict
	}
	m.rows[url] = title
	return nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type mockScraper struct {
	calls    int
	lastURL  string
	formats  []domain.ScrapeFormat
	scrapeFn func(ctx context.Context, url string) (domain.ScrapeResult, error)
}

func (m *mockScraper) Scrape(ctx context.Context, url string, formats []domain.ScrapeFormat) (domain.ScrapeResult, error) {
	m.calls++
	m.lastURL = url
	m.formats = formats
	return m.scrapeFn(ctx, url)
}

func summary(json string) func(context.Context, string) (domain.ScrapeResult, error) {
	return func(context.Context, string) (domain.ScrapeResult, error) {
		return domain.ScrapeResult{JSON: []byte(json)}, nil
	}
}

type mockIndexer struct {
	records  []record.Record
	upsertFn func(ctx context.Context, recs []record.Record) error
}

func (m *mockIndexer) Upsert(ctx context.Context, recs []record.Record) error {
	if m.upsertFn != nil {
		if err := m.upsertFn(ctx, recs); err != nil {
			return err
		}
	}
	m.records = append(m.records, recs...)
	return nil
}

type mockClaims struct {
	mu      sync.Mutex
	held    map[string]string
	deleted []string
}

func newMockClaims() *mockClaims { return &mockClaims{held: map[string]string{}} }

func (m *mockClaims) hold(key, jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held[key] = jobID
}

func (m *mockClaims) DelIfValue(_ context.Context, key string, value []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.held[key]; !ok || v != string(value) {
		return false, nil
	}
	delete(m.held, key)
	m.deleted = append(m.deleted, key)
	return true, nil
}
