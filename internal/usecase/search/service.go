// Package search answers semantic bookmark queries.
package search

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kailas-cloud/bookmarkd/internal/domain"
	"github.com/kailas-cloud/bookmarkd/internal/domain/record"
)

// Query length bounds, in characters.
const (
	MinQueryLen = 2
	MaxQueryLen = 100
)

// DefaultTopK is the number of neighbours requested per query.
const DefaultTopK = 10

// Service handles semantic search over saved pages.
type Service struct {
	index Index
	topK  int
}

// New creates a search service.
func New(index Index, topK int) *Service {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Service{index: index, topK: topK}
}

// Search runs query with the default topK.
func (s *Service) Search(ctx context.Context, query string) ([]record.Hit, error) {
	return s.SearchTopK(ctx, query, s.topK)
}

// SearchTopK validates query and returns up to topK hits with a positive
// score, in non-increasing score order.
func (s *Service) SearchTopK(ctx context.Context, query string, topK int) ([]record.Hit, error) {
	query = strings.TrimSpace(query)
	if err := ValidateQuery(query); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = s.topK
	}

	hits, err := s.index.Query(ctx, query, topK)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	hits = record.DropZeroScores(hits)
	record.SortByScore(hits)
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// ValidateQuery enforces the query length bounds.
func ValidateQuery(query string) error {
	n := utf8.RuneCountInString(query)
	if n < MinQueryLen || n > MaxQueryLen {
		return fmt.Errorf("%w: query must be %d-%d characters, got %d", domain.ErrValidation, MinQueryLen, MaxQueryLen, n)
	}
	return nil
}
