package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/bookmarkd/internal/transport/authsvc"
	chiTransport "github.com/kailas-cloud/bookmarkd/internal/transport/chi"
	natsTransport "github.com/kailas-cloud/bookmarkd/internal/transport/nats"
	openaiTransport "github.com/kailas-cloud/bookmarkd/internal/transport/openai"
	bookmarkuc "github.com/kailas-cloud/bookmarkd/internal/usecase/bookmark"
	chatuc "github.com/kailas-cloud/bookmarkd/internal/usecase/chat"
	healthuc "github.com/kailas-cloud/bookmarkd/internal/usecase/health"
	"github.com/kailas-cloud/bookmarkd/internal/usecase/ingest"
	searchuc "github.com/kailas-cloud/bookmarkd/internal/usecase/search"
)

// claimGrace keeps a pending claim alive a little past the task budget
// so a crashed runner cannot block a url forever.
const claimGrace = time.Minute

func serveCmd() *cobra.Command {
	var withWorker bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), withWorker)
		},
	}
	cmd.Flags().BoolVar(&withWorker, "with-worker", false,
		"also consume the ingestion queue in this process (nats driver only)")
	return cmd
}

func runServe(parent context.Context, withWorker bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, "api")
	if err != nil {
		return err
	}
	defer a.close()

	cfg := a.cfg
	logger := a.logger
	runner := a.runner()

	var (
		dispatcher ingest.Dispatcher
		inline     *ingest.InlineDispatcher
		queue      *natsTransport.Conn
	)
	switch cfg.Queue.Driver {
	case "nats":
		queue, err = natsTransport.Connect(ctx, natsConfig(a))
		if err != nil {
			return fmt.Errorf("connect queue: %w", err)
		}
		defer queue.Close()
		dispatcher = queue.Dispatcher()
	default:
		inline = ingest.NewInlineDispatcher(runner, logger)
		dispatcher = inline
	}
	logger.Info("Ingestion dispatcher ready", zap.String("driver", cfg.Queue.Driver))

	bookmarkSvc := bookmarkuc.New(a.bookmarks, a.store, dispatcher,
		cfg.Storage.KeyPrefix, cfg.TaskBudget()+claimGrace)
	searchSvc := searchuc.New(a.sites, cfg.Index.SearchTopK)
	chatSvc := chatuc.New(
		openaiTransport.NewChat(&openaiTransport.Config{
			APIKey:  cfg.Chat.APIKey,
			BaseURL: cfg.Chat.BaseURL,
			Model:   cfg.Chat.Model,
			Logger:  logger,
		}),
		searchSvc, bookmarkSvc,
		chatuc.Config{
			SystemPrompt:  cfg.Chat.SystemPrompt,
			TopK:          cfg.Chat.TopK,
			MaxToolRounds: cfg.Chat.MaxToolRounds,
		},
	)
	healthSvc := healthuc.New(a.store, a.sql, a.embedder)

	authCfg := chiTransport.AuthConfig{
		APIKeys:      cfg.Auth.APIKeys,
		SecureCookie: cfg.Auth.SecureCookie,
	}
	loginPath := ""
	if cfg.Auth.IssuerURL != "" {
		authCfg.Sessions = authsvc.New(authsvc.Config{
			IssuerURL: cfg.Auth.IssuerURL,
			ClientID:  cfg.Auth.ClientID,
			Timeout:   time.Duration(cfg.Auth.TimeoutSec) * time.Second,
		})
		loginPath = cfg.Auth.LoginPath
		logger.Info("Session authentication enabled", zap.String("issuer", cfg.Auth.IssuerURL))
	}

	server := chiTransport.NewServer(bookmarkSvc, searchSvc, chatSvc, healthSvc, logger)
	handler := chiTransport.NewRouter(server, chiTransport.RouterConfig{
		Auth:      authCfg,
		LoginPath: loginPath,
		Logger:    logger,
	})

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		ReadTimeout:       time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	var worker *natsTransport.Worker
	if withWorker && queue != nil {
		worker, err = queue.Worker(ctx, runner)
		if err != nil {
			return fmt.Errorf("create worker: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if worker != nil {
		g.Go(func() error { return worker.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Received shutdown signal")

		shutdownCtx, cancel := context.WithTimeout(context.Background(),
			time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error during shutdown", zap.Error(err))
		}
		if inline != nil {
			if err := inline.Close(shutdownCtx); err != nil {
				logger.Warn("Ingestion jobs still running at shutdown", zap.Error(err))
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}

func natsConfig(a *app) natsTransport.Config {
	return natsTransport.Config{
		URL:         a.cfg.Queue.URL,
		Stream:      a.cfg.Queue.Stream,
		Subject:     a.cfg.Queue.Subject,
		Consumer:    a.cfg.Queue.Consumer,
		MaxDeliver:  a.cfg.Queue.MaxDeliver,
		Concurrency: a.cfg.Queue.Concurrency,
		AckWait:     a.cfg.TaskBudget() + 30*time.Second,
		Logger:      a.logger,
	}
}
