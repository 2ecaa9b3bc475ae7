package chat

import (
	"context"

	"github.com/kailas-cloud/bookmarkd/internal/domain/record"
	"github.com/kailas-cloud/bookmarkd/internal/usecase/bookmark"
)

// Searcher runs the searchBookmarks tool.
type Searcher interface {
	SearchTopK(ctx context.Context, query string, topK int) ([]record.Hit, error)
}

// Creator runs the createBookmark tool.
type Creator interface {
	Create(ctx context.Context, rawURL string) (bookmark.JobHandle, error)
}
