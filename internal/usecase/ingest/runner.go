package ingest

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/bookmarkd/internal/logger"
	"github.com/kailas-cloud/bookmarkd/internal/metrics"
)

// DefaultBudget bounds a single job.
const DefaultBudget = 300 * time.Second

// Metric outcomes.
const (
	outcomeIndexed   = "indexed"
	outcomeDuplicate = "duplicate"
	outcomeFailed    = "failed"
	outcomeTimeout   = "timeout"
)

// PendingKey is the claim key held while a url is being ingested.
func PendingKey(prefix, normalizedURL string) string {
	return prefix + "ingest:pending:" + normalizedURL
}

// Runner executes tasks under the job budget and releases the pending claim.
type Runner struct {
	task      *Task
	claims    ClaimStore
	keyPrefix string
	budget    time.Duration
	logger    *zap.Logger
}

// NewRunner creates a Runner. claims may be nil when no claims are taken.
func NewRunner(task *Task, claims ClaimStore, keyPrefix string, budget time.Duration, logger *zap.Logger) *Runner {
	if budget <= 0 {
		budget = DefaultBudget
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{task: task, claims: claims, keyPrefix: keyPrefix, budget: budget, logger: logger}
}

// Budget returns the per-job deadline.
func (r *Runner) Budget() time.Duration { return r.budget }

// Run executes job with its own deadline.
func (r *Runner) Run(ctx context.Context, job Job) (Result, error) {
	log := r.logger.With(zap.String("job_id", job.ID), zap.String("url", job.URL))
	ctx = logger.ContextWithLogger(ctx, log)

	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, r.budget)
	res, err := r.task.Run(runCtx, job)
	cancel()
	elapsed := time.Since(start)

	r.release(ctx, job, res, log)

	outcome := outcomeOf(res, err)
	metrics.IngestTotal.WithLabelValues(outcome).Inc()
	metrics.IngestDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())

	fields := []zap.Field{
		zap.String("state", string(res.State)),
		zap.String("outcome", outcome),
		zap.String("normalized_url", res.URL),
		zap.Duration("duration", elapsed),
	}
	if err != nil {
		log.Error("ingest job failed", append(fields, zap.Error(err))...)
		return res, err
	}
	if res.RecordID != "" {
		fields = append(fields, zap.String("record_id", res.RecordID))
	}
	log.Info("ingest job finished", fields...)
	return res, nil
}

// release drops the claim for the job's url while it is still held by this job.
// A claim that expired and was retaken by a newer job is left alone.
// Uses a fresh deadline so a timed-out job still frees its claim.
func (r *Runner) release(ctx context.Context, job Job, res Result, log *zap.Logger) {
	if r.claims == nil || job.ID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	key := PendingKey(r.keyPrefix, res.URL)
	released, err := r.claims.DelIfValue(ctx, key, []byte(job.ID))
	if err != nil {
		log.Warn("release pending claim", zap.String("key", key), zap.Error(err))
		return
	}
	if !released {
		log.Debug("pending claim not held by job", zap.String("key", key))
	}
}

func outcomeOf(res Result, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return outcomeTimeout
	case err != nil:
		return outcomeFailed
	case res.Duplicate():
		return outcomeDuplicate
	default:
		return outcomeIndexed
	}
}
