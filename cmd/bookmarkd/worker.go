package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	natsTransport "github.com/kailas-cloud/bookmarkd/internal/transport/nats"
)

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume ingestion jobs from the queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd.Context())
		},
	}
}

func runWorker(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, "worker")
	if err != nil {
		return err
	}
	defer a.close()

	if a.cfg.Queue.Driver != "nats" {
		return fmt.Errorf("worker requires queue.driver nats, got %q", a.cfg.Queue.Driver)
	}

	queue, err := natsTransport.Connect(ctx, natsConfig(a))
	if err != nil {
		return fmt.Errorf("connect queue: %w", err)
	}
	defer queue.Close()

	worker, err := queue.Worker(ctx, a.runner())
	if err != nil {
		return fmt.Errorf("create worker: %w", err)
	}

	a.logger.Info("Worker started",
		zap.String("stream", a.cfg.Queue.Stream),
		zap.String("consumer", a.cfg.Queue.Consumer),
		zap.Int("concurrency", a.cfg.Queue.Concurrency),
	)
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("worker: %w", err)
	}
	a.logger.Info("Worker stopped")
	return nil
}
