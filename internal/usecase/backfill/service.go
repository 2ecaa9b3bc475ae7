// Package backfill recreates missing bookmark rows from the search collection.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/bookmarkd/internal/domain"
	"github.com/kailas-cloud/bookmarkd/internal/domain/bookmark"
	"github.com/kailas-cloud/bookmarkd/internal/domain/record"
)

// RecordLister walks every record of the search namespace.
type RecordLister interface {
	List(ctx context.Context) ([]record.Record, error)
}

// BookmarkStore is the relational side.
type BookmarkStore interface {
	Exists(ctx context.Context, url string) (bool, error)
	Create(ctx context.Context, url, title string) error
}

// Report counts what a run did.
type Report struct {
	Scanned int `json:"scanned"`
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	NoURL   int `json:"no_url"`
	Failed  int `json:"failed"`
}

// Service runs the backfill.
type Service struct {
	records RecordLister
	store   BookmarkStore
	logger  *zap.Logger
}

// New creates a backfill service.
func New(records RecordLister, store BookmarkStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{records: records, store: store, logger: logger}
}

// Run creates a bookmark row for every indexed url that has none.
// With dryRun set nothing is written. Per-record errors are counted and
// logged; only a failure to list the collection aborts the run.
func (s *Service) Run(ctx context.Context, dryRun bool) (Report, error) {
	recs, err := s.records.List(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list records: %w", err)
	}

	var rep Report
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return rep, err //nolint:wrapcheck // cancellation
		}
		rep.Scanned++

		if strings.TrimSpace(rec.URL) == "" {
			rep.NoURL++
			continue
		}
		url := bookmark.Normalize(rec.URL)
		log := s.logger.With(zap.String("record_id", rec.ID), zap.String("url", url))

		exists, err := s.store.Exists(ctx, url)
		if err != nil {
			rep.Failed++
			log.Error("backfill: check bookmark", zap.Error(err))
			continue
		}
		if exists {
			rep.Skipped++
			log.Debug("backfill: skipping, exists")
			continue
		}

		if dryRun {
			rep.Created++
			log.Info("backfill: would create")
			continue
		}

		switch err := s.store.Create(ctx, url, rec.Title); {
		case err == nil:
			rep.Created++
			log.Info("backfill: created")
		case errors.Is(err, domain.ErrConflict):
			rep.Skipped++
			log.Debug("backfill: skipping, created concurrently")
		default:
			rep.Failed++
			log.Error("backfill: create bookmark", zap.Error(err))
		}
	}

	return rep, nil
}
