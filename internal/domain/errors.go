package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation signals malformed input (bad url, bad query).
	ErrValidation = errors.New("validation failed")
	// ErrUnauthorized signals a missing or invalid session.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrConflict signals a bookmark that already exists or is being ingested.
	ErrConflict = errors.New("already exists")
	// ErrFetch signals a scraping failure.
	ErrFetch = errors.New("fetch failed")
	// ErrExtraction signals scraped content without the expected fields.
	ErrExtraction = errors.New("extraction failed")
	// ErrSearchIndex signals a vector index failure.
	ErrSearchIndex = errors.New("search index error")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrChatProvider signals a chat completion failure.
	ErrChatProvider = errors.New("chat provider error")
)

// FetchError carries the upstream status and body of a failed scrape.
// StatusCode is zero for transport-level failures.
type FetchError struct {
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: %s: status %d: %s", ErrFetch, e.URL, e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", ErrFetch, e.URL, e.Err)
	default:
		return fmt.Sprintf("%s: %s", ErrFetch, e.URL)
	}
}

// Is makes errors.Is(err, ErrFetch) match.
func (e *FetchError) Is(target error) bool { return target == ErrFetch }

func (e *FetchError) Unwrap() error { return e.Err }
