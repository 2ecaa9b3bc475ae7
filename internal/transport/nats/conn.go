// Package nats carries ingestion jobs over NATS JetStream.
package nats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

// Config holds JetStream settings.
type Config struct {
	URL         string
	Stream      string
	Subject     string
	Consumer    string
	MaxDeliver  int
	Concurrency int
	// AckWait must exceed the job budget or jobs are redelivered mid-run.
	AckWait time.Duration
	Logger  *zap.Logger
}

// Conn is a JetStream connection with the ingestion stream in place.
type Conn struct {
	nc     *natsgo.Conn
	js     jetstream.JetStream
	cfg    Config
	logger *zap.Logger
}

// Connect dials NATS and creates or updates the stream.
func Connect(ctx context.Context, cfg Config) (*Conn, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats url is required")
	}
	if cfg.Subject == "" {
		return nil, errors.New("nats subject is required")
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	nc, err := natsgo.Connect(cfg.URL,
		natsgo.Name("bookmarkd"),
		natsgo.MaxReconnects(-1),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		natsgo.ReconnectHandler(func(c *natsgo.Conn) {
			log.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       cfg.Stream,
		Subjects:   []string{StreamSubjects(cfg.Subject)},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.WorkQueuePolicy,
		Duplicates: 2 * time.Minute,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create stream %s: %w", cfg.Stream, err)
	}

	log.Info("nats connected", zap.String("url", nc.ConnectedUrl()), zap.String("stream", cfg.Stream))
	return &Conn{nc: nc, js: js, cfg: cfg, logger: log}, nil
}

// StreamSubjects returns the wildcard covering subject's first token,
// e.g. "bookmarks.ingest" -> "bookmarks.>".
func StreamSubjects(subject string) string {
	root, _, _ := strings.Cut(subject, ".")
	return root + ".>"
}

// Dispatcher returns a publisher for ingestion jobs.
func (c *Conn) Dispatcher() *Dispatcher {
	return NewDispatcher(c.js, c.cfg.Subject)
}

// Worker binds the durable consumer and returns a worker over it.
func (c *Conn) Worker(ctx context.Context, runner JobRunner) (*Worker, error) {
	consumer, err := c.js.CreateOrUpdateConsumer(ctx, c.cfg.Stream, jetstream.ConsumerConfig{
		Durable:       c.cfg.Consumer,
		FilterSubject: c.cfg.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       c.cfg.AckWait,
		MaxDeliver:    c.cfg.MaxDeliver,
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer %s: %w", c.cfg.Consumer, err)
	}
	return NewWorker(consumer, runner, c.cfg.Concurrency, c.logger), nil
}

// Ping reports whether the connection is usable.
func (c *Conn) Ping(_ context.Context) error {
	if !c.nc.IsConnected() {
		return fmt.Errorf("nats status %s", c.nc.Status())
	}
	return nil
}

// Close drains the connection.
func (c *Conn) Close() {
	if err := c.nc.Drain(); err != nil {
		c.logger.Warn("nats drain", zap.Error(err))
	}
}
