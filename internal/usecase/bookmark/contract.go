package bookmark

import (
	"context"
	"time"

	"github.com/kailas-cloud/bookmarkd/internal/usecase/ingest"
)

// Existence checks the relational store for a normalized url.
type Existence interface {
	Exists(ctx context.Context, url string) (bool, error)
}

// ClaimStore holds pending-ingestion markers.
type ClaimStore interface {
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
}

// Dispatcher queues an ingestion job.
type Dispatcher interface {
	Dispatch(ctx context.Context, job ingest.Job) error
}
