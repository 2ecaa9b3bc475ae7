package nats

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/kailas-cloud/bookmarkd/internal/usecase/ingest"
)

const fetchWait = 5 * time.Second

// JobRunner executes one ingestion job.
type JobRunner interface {
	Run(ctx context.Context, job ingest.Job) (ingest.Result, error)
}

// fetcher is the slice of jetstream.Consumer the worker needs.
type fetcher interface {
	Fetch(batch int, opts ...jetstream.FetchOpt) (jetstream.MessageBatch, error)
}

// Worker pulls jobs from the durable consumer. Each goroutine handles one
// message at a time: Ack on success, Term on failure. Retries are left to
// the consumer's MaxDeliver.
type Worker struct {
	consumer    fetcher
	runner      JobRunner
	concurrency int
	logger      *zap.Logger
}

// NewWorker creates a Worker.
func NewWorker(consumer fetcher, runner JobRunner, concurrency int, logger *zap.Logger) *Worker {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{consumer: consumer, runner: runner, concurrency: concurrency, logger: logger}
}

// Run consumes until ctx is cancelled, then waits for in-flight jobs.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("ingest worker started", zap.Int("concurrency", w.concurrency))

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	wg.Wait()

	w.logger.Info("ingest worker stopped")
	return nil
}

func (w *Worker) loop(ctx context.Context) {
	for ctx.Err() == nil {
		batch, err := w.consumer.Fetch(1, jetstream.FetchMaxWait(fetchWait))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Warn("fetch ingest job", zap.Error(err))
			sleep(ctx, time.Second)
			continue
		}

		for msg := range batch.Messages() {
			w.handle(ctx, msg)
		}
		if err := batch.Error(); err != nil && !errors.Is(err, jetstream.ErrNoMessages) && ctx.Err() == nil {
			w.logger.Debug("fetch batch", zap.Error(err))
		}
	}
}

// handle runs a job detached from shutdown so it finishes within its own budget.
func (w *Worker) handle(ctx context.Context, msg jetstream.Msg) {
	var job ingest.Job
	if err := json.Unmarshal(msg.Data(), &job); err != nil || job.URL == "" {
		w.logger.Error("drop malformed ingest job", zap.String("subject", msg.Subject()), zap.Error(err))
		w.term(msg, "malformed job")
		return
	}

	if _, err := w.runner.Run(context.WithoutCancel(ctx), job); err != nil {
		w.term(msg, "job failed")
		return
	}
	if err := msg.Ack(); err != nil {
		w.logger.Warn("ack ingest job", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (w *Worker) term(msg jetstream.Msg, reason string) {
	if err := msg.TermWithReason(reason); err != nil {
		w.logger.Warn("term ingest job", zap.Error(err))
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
