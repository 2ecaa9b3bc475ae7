package ingest

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrDispatcherClosed is returned by Dispatch after Close.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// InlineDispatcher runs jobs in-process, one goroutine per job.
// Jobs are detached from the request context that dispatched them.
type InlineDispatcher struct {
	runner *Runner
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewInlineDispatcher creates an in-process dispatcher.
func NewInlineDispatcher(runner *Runner, logger *zap.Logger) *InlineDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InlineDispatcher{runner: runner, logger: logger}
}

// Dispatch starts the job and returns immediately.
func (d *InlineDispatcher) Dispatch(ctx context.Context, job Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		// errors are logged and counted by the runner
		_, _ = d.runner.Run(context.WithoutCancel(ctx), job)
	}()
	return nil
}

// Close stops accepting jobs and waits for in-flight ones until ctx is done.
func (d *InlineDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.logger.Warn("inline dispatcher: jobs still running at shutdown")
		return ctx.Err()
	}
}
