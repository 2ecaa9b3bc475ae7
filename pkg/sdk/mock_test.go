package bookmarkd

import (
	"context"

	"github.com/kailas-cloud/bookmarkd/internal/domain/record"
	healthuc "github.com/kailas-cloud/bookmarkd/internal/usecase/health"
)

type mockIndexUC struct {
	ensureFn func(ctx context.Context) error
	upsertFn func(ctx context.Context, records []record.Record) error
	listFn   func(ctx context.Context) ([]record.Record, error)
}

func (m *mockIndexUC) EnsureIndex(ctx context.Context) error { return m.ensureFn(ctx) }

func (m *mockIndexUC) Upsert(ctx context.Context, records []record.Record) error {
	return m.upsertFn(ctx, records)
}

func (m *mockIndexUC) List(ctx context.Context) ([]record.Record, error) { return m.listFn(ctx) }

type mockSearchUC struct {
	searchFn func(ctx context.Context, query string, topK int) ([]record.Hit, error)
}

func (m *mockSearchUC) SearchTopK(ctx context.Context, query string, topK int) ([]record.Hit, error) {
	return m.searchFn(ctx, query, topK)
}

type mockHealthUC struct {
	report healthuc.Report
}

func (m *mockHealthUC) Check(_ context.Context) healthuc.Report { return m.report }

type mockEmbedder struct {
	fn func(ctx context.Context, text string) (EmbeddingResult, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	return m.fn(ctx, text)
}

func testClient(index indexUseCase, search searchUseCase) *Client {
	return &Client{index: index, searchSvc: search}
}
