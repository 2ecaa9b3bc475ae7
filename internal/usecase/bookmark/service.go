// Package bookmark accepts new bookmarks and queues their ingestion.
package bookmark

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/bookmarkd/internal/domain"
	dombm "github.com/kailas-cloud/bookmarkd/internal/domain/bookmark"
	"github.com/kailas-cloud/bookmarkd/internal/idgen"
	"github.com/kailas-cloud/bookmarkd/internal/logger"
	"github.com/kailas-cloud/bookmarkd/internal/usecase/ingest"
)

// StatusQueued is the status of a freshly accepted job.
const StatusQueued = "queued"

// JobHandle is returned to the caller once the job is queued.
type JobHandle struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Status string `json:"status"`
}

// Service validates, deduplicates and dispatches bookmark creation.
type Service struct {
	store      Existence
	claims     ClaimStore
	dispatcher Dispatcher
	keyPrefix  string
	claimTTL   time.Duration
}

// New creates a Service. claimTTL should match the ingestion budget.
func New(store Existence, claims ClaimStore, dispatcher Dispatcher, keyPrefix string, claimTTL time.Duration) *Service {
	if claimTTL <= 0 {
		claimTTL = ingest.DefaultBudget
	}
	return &Service{
		store:      store,
		claims:     claims,
		dispatcher: dispatcher,
		keyPrefix:  keyPrefix,
		claimTTL:   claimTTL,
	}
}

// Create queues ingestion of rawURL. A url that is already stored or
// currently being ingested yields domain.ErrConflict.
func (s *Service) Create(ctx context.Context, rawURL string) (JobHandle, error) {
	if err := dombm.ValidateURL(rawURL); err != nil {
		return JobHandle{}, err //nolint:wrapcheck // already a domain error
	}
	normalized := dombm.Normalize(rawURL)

	exists, err := s.store.Exists(ctx, normalized)
	if err != nil {
		return JobHandle{}, fmt.Errorf("check bookmark: %w", err)
	}
	if exists {
		return JobHandle{}, fmt.Errorf("bookmark %s: %w", normalized, domain.ErrConflict)
	}

	jobID := idgen.New()
	key := ingest.PendingKey(s.keyPrefix, normalized)
	acquired, err := s.claims.SetNX(ctx, key, []byte(jobID), s.claimTTL)
	if err != nil {
		return JobHandle{}, fmt.Errorf("claim %s: %w", normalized, err)
	}
	if !acquired {
		return JobHandle{}, fmt.Errorf("bookmark %s is being ingested: %w", normalized, domain.ErrConflict)
	}

	if err := s.dispatcher.Dispatch(ctx, ingest.Job{ID: jobID, URL: normalized}); err != nil {
		if delErr := s.claims.Del(context.WithoutCancel(ctx), key); delErr != nil {
			logger.FromContext(ctx).Warn("release claim after dispatch failure", zap.String("key", key), zap.Error(delErr))
		}
		return JobHandle{}, fmt.Errorf("dispatch ingestion: %w", err)
	}

	logger.FromContext(ctx).Info("bookmark queued", zap.String("job_id", jobID), zap.String("url", normalized))
	return JobHandle{ID: jobID, URL: normalized, Status: StatusQueued}, nil
}
