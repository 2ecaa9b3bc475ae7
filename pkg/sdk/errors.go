package bookmarkd

import "github.com/kailas-cloud/bookmarkd/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrValidation             = domain.ErrValidation
	ErrSearchIndex            = domain.ErrSearchIndex
	ErrEmbeddingProviderError = domain.ErrEmbeddingProviderError
)
