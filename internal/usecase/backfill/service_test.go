package backfill

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/bookmarkd/internal/domain"
	"github.com/kailas-cloud/bookmarkd/internal/domain/record"
)

type mockLister struct {
	recs []record.Record
	err  error
}

func (m *mockLister) List(context.Context) ([]record.Record, error) { return m.recs, m.err }

type mockStore struct {
	rows      map[string]string
	existsErr map[string]error
	createErr map[string]error
}

func newMockStore() *mockStore {
	return &mockStore{rows: map[string]string{}, existsErr: map[string]error{}, createErr: map[string]error{}}
}

func (m *mockStore) Exists(_ context.Context, url string) (bool, error) {
	if err := m.existsErr[url]; err != nil {
		return false, err
	}
	_, ok := m.rows[url]
	return ok, nil
}

func (m *mockStore) Create(_ context.Context, url, title string) error {
	if err := m.createErr[url]; err != nil {
		return err
	}
	m.rows[url] = title
	return nil
}

func TestRun(t *testing.T) {
	lister := &mockLister{recs: []record.Record{
		{ID: "1", URL: "https://a.com/?utm_source=x", Title: "A"},
		{ID: "2", URL: "https://b.com", Title: "B"},
		{ID: "3", URL: "", Title: "orphan"},
		{ID: "4", URL: "https://c.com", Title: "C"},
		{ID: "5", URL: "https://d.com", Title: "D"},
		{ID: "6", URL: "https://e.com", Title: "E"},
	}}
	store := newMockStore()
	store.rows["https://b.com"] = "B"
	store.existsErr["https://c.com"] = errors.New("db hiccup")
	store.createErr["https://d.com"] = domain.ErrConflict

	rep, err := New(lister, store, nil).Run(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, Report{Scanned: 6, Created: 2, Skipped: 2, NoURL: 1, Failed: 1}, rep)
	assert.Equal(t, "A", store.rows["https://a.com"])
	assert.Equal(t, "E", store.rows["https://e.com"])
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	lister := &mockLister{recs: []record.Record{{ID: "1", URL: "https://a.com", Title: "A"}}}
	store := newMockStore()

	rep, err := New(lister, store, nil).Run(context.Background(), true)
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Created)
	assert.Empty(t, store.rows)
}

func TestRun_ListError(t *testing.T) {
	_, err := New(&mockLister{err: domain.ErrSearchIndex}, newMockStore(), nil).Run(context.Background(), false)
	assert.ErrorIs(t, err, domain.ErrSearchIndex)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	lister := &mockLister{recs: []record.Record{{ID: "1", URL: "https://a.com"}}}
	rep, err := New(lister, newMockStore(), nil).Run(ctx, false)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, rep.Scanned)
}
