package chi

import (
	"github.com/kailas-cloud/bookmarkd/internal/domain"
	"github.com/kailas-cloud/bookmarkd/internal/domain/record"
)

// ErrorCode is a machine-readable error code returned in ErrorResponse.
type ErrorCode string

// Error codes.
const (
	ErrorCodeBadRequest       ErrorCode = "bad_request"
	ErrorCodeValidationFailed ErrorCode = "validation_failed"
	ErrorCodeUnauthorized     ErrorCode = "unauthorized"
	ErrorCodeAlreadyExists    ErrorCode = "already_exists"
	ErrorCodeNotFound         ErrorCode = "not_found"
	ErrorCodeMethodNotAllowed ErrorCode = "method_not_allowed"
	ErrorCodeInternalError    ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// CreateBookmarkRequest is the body of POST /api/bookmark/create.
type CreateBookmarkRequest struct {
	URL string `json:"url"`
}

// SearchParams are the query parameters of GET /api/bookmark/search.
type SearchParams struct {
	Query string `form:"query" json:"query"`
}

// SearchResponse is the body of a successful search.
type SearchResponse struct {
	Hits []record.Hit `json:"hits"`
}

// ChatRequestBody is the body of POST /api/chat.
type ChatRequestBody struct {
	Messages []domain.ChatMessage `json:"messages"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// InfoResponse is the body of GET /.
type InfoResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}
