package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/bookmarkd/internal/domain"
	"github.com/kailas-cloud/bookmarkd/internal/metrics"
)

func TestPendingKey(t *testing.T) {
	assert.Equal(t, "bookmarkd:ingest:pending:https://a.com/x", PendingKey("bookmarkd:", "https://a.com/x"))
}

func TestRunner_ReleasesClaimOnSuccess(t *testing.T) {
	claims := newMockClaims()
	key := PendingKey("p:", "https://example.com/page")
	claims.hold(key, "j")

	task := newTestTask(newMemStore(), &mockScraper{scrapeFn: summary(goodSummary)}, &mockIndexer{}, Config{})
	r := NewRunner(task, claims, "p:", time.Second, nil)

	before := testutil.ToFloat64(metrics.IngestTotal.WithLabelValues(outcomeIndexed))
	res, err := r.Run(context.Background(), Job{ID: "j", URL: "https://example.com/page?utm_source=ads"})
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, []string{key}, claims.deleted)
	assert.NotContains(t, claims.held, key)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.IngestTotal.WithLabelValues(outcomeIndexed)))
}

func TestRunner_KeepsClaimRetakenByNewerJob(t *testing.T) {
	claims := newMockClaims()
	key := PendingKey("p:", "https://example.com/page")
	claims.hold(key, "newer")

	task := newTestTask(newMemStore(), &mockScraper{scrapeFn: summary(goodSummary)}, &mockIndexer{}, Config{})
	r := NewRunner(task, claims, "p:", time.Second, nil)

	_, err := r.Run(context.Background(), Job{ID: "older", URL: "https://example.com/page"})
	require.NoError(t, err)

	assert.Empty(t, claims.deleted)
	assert.Equal(t, "newer", claims.held[key])
}

func TestRunner_ReleasesClaimOnFailure(t *testing.T) {
	claims := newMockClaims()
	claims.hold(PendingKey("p:", "https://example.com"), "j")
	sc := &mockScraper{scrapeFn: func(context.Context, string) (domain.ScrapeResult, error) {
		return domain.ScrapeResult{}, &domain.FetchError{URL: "x", Err: errors.New("dial")}
	}}
	r := NewRunner(newTestTask(newMemStore(), sc, &mockIndexer{}, Config{}), claims, "p:", time.Second, nil)

	before := testutil.ToFloat64(metrics.IngestTotal.WithLabelValues(outcomeFailed))
	_, err := r.Run(context.Background(), Job{ID: "j", URL: "https://example.com"})
	require.Error(t, err)

	assert.Equal(t, []string{PendingKey("p:", "https://example.com")}, claims.deleted)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.IngestTotal.WithLabelValues(outcomeFailed)))
}

func TestRunner_DuplicateOutcome(t *testing.T) {
	store := newMemStore()
	store.rows["https://example.com"] = "t"
	r := NewRunner(newTestTask(store, &mockScraper{}, &mockIndexer{}, Config{}), nil, "p:", time.Second, nil)

	before := testutil.ToFloat64(metrics.IngestTotal.WithLabelValues(outcomeDuplicate))
	res, err := r.Run(context.Background(), Job{URL: "https://example.com/"})
	require.NoError(t, err)
	assert.True(t, res.Duplicate())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.IngestTotal.WithLabelValues(outcomeDuplicate)))
}

func TestRunner_TimeoutThenRecovery(t *testing.T) {
	store := newMemStore()
	idx := &mockIndexer{}
	claims := newMockClaims()
	claims.hold(PendingKey("p:", "https://slow.example.com"), "slow")

	hang := func(ctx context.Context, _ string) (domain.ScrapeResult, error) {
		<-ctx.Done()
		return domain.ScrapeResult{}, &domain.FetchError{URL: "x", Err: ctx.Err()}
	}
	sc := &mockScraper{scrapeFn: hang}
	r := NewRunner(newTestTask(store, sc, idx, Config{}), claims, "p:", 50*time.Millisecond, nil)

	before := testutil.ToFloat64(metrics.IngestTotal.WithLabelValues(outcomeTimeout))
	res, err := r.Run(context.Background(), Job{ID: "slow", URL: "https://slow.example.com"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.IngestTotal.WithLabelValues(outcomeTimeout)))
	assert.Zero(t, store.count())
	assert.NotContains(t, claims.held, PendingKey("p:", "https://slow.example.com"))

	sc.scrapeFn = summary(goodSummary)
	res, err = r.Run(context.Background(), Job{URL: "https://slow.example.com"})
	require.NoError(t, err)
	assert.Equal(t, MessageIndexed, res.Message)
	assert.Equal(t, 1, store.count())
	assert.Len(t, idx.records, 1)
}

func TestRunner_DefaultBudget(t *testing.T) {
	r := NewRunner(nil, nil, "", 0, nil)
	assert.Equal(t, DefaultBudget, r.Budget())
}
