package search

import (
	"context"

	"github.com/kailas-cloud/bookmarkd/internal/domain/record"
)

// Index runs semantic queries against the search collection.
type Index interface {
	Query(ctx context.Context, text string, topK int) ([]record.Hit, error)
}
