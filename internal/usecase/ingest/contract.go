package ingest

import (
	"context"

	"github.com/kailas-cloud/bookmarkd/internal/domain/record"
)

// BookmarkStore is the relational store as seen by the task.
type BookmarkStore interface {
	Exists(ctx context.Context, url string) (bool, error)
	Create(ctx context.Context, url, title string) error
}

// Indexer writes records into the search collection.
type Indexer interface {
	Upsert(ctx context.Context, records []record.Record) error
}

// ClaimStore holds the pending-ingestion markers. A claim's value is the job id that took it.
type ClaimStore interface {
	DelIfValue(ctx context.Context, key string, value []byte) (bool, error)
}

// Dispatcher hands a job to whatever runs it.
type Dispatcher interface {
	Dispatch(ctx context.Context, job Job) error
}
