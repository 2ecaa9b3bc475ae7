// Package chi is the HTTP transport: routes, auth, and error mapping.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/bookmarkd/internal/domain"
	"github.com/kailas-cloud/bookmarkd/internal/domain/record"
	"github.com/kailas-cloud/bookmarkd/internal/logger"
	"github.com/kailas-cloud/bookmarkd/internal/usecase/bookmark"
	"github.com/kailas-cloud/bookmarkd/internal/usecase/chat"
	healthuc "github.com/kailas-cloud/bookmarkd/internal/usecase/health"
	"github.com/kailas-cloud/bookmarkd/internal/version"
)

const maxBodyBytes = 1 << 20

// BookmarkCreator queues new bookmarks.
type BookmarkCreator interface {
	Create(ctx context.Context, rawURL string) (bookmark.JobHandle, error)
}

// Searcher answers search queries.
type Searcher interface {
	Search(ctx context.Context, query string) ([]record.Hit, error)
}

// ChatStreamer runs the assistant conversation.
type ChatStreamer interface {
	Stream(ctx context.Context, messages []domain.ChatMessage, emit func(chat.Event) error) error
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server holds the HTTP handlers.
type Server struct {
	bookmarks     BookmarkCreator
	search        Searcher
	chat          ChatStreamer
	health        HealthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	bookmarks BookmarkCreator,
	search Searcher,
	chat ChatStreamer,
	health HealthChecker,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		bookmarks: bookmarks,
		search:    search,
		chat:      chat,
		health:    health,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, ErrorCodeValidationFailed),
		sentinelHandler(domain.ErrUnauthorized, http.StatusUnauthorized, ErrorCodeUnauthorized),
		sentinelHandler(domain.ErrConflict, http.StatusConflict, ErrorCodeAlreadyExists),
	}
	return s
}

// CreateBookmark handles POST /api/bookmark/create.
func (s *Server) CreateBookmark(w http.ResponseWriter, r *http.Request) {
	var req CreateBookmarkRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	handle, err := s.bookmarks.Create(r.Context(), req.URL)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, handle)
}

// SearchBookmarks handles GET /api/bookmark/search.
func (s *Server) SearchBookmarks(w http.ResponseWriter, r *http.Request) {
	var params SearchParams
	if err := runtime.BindQueryParameter("form", true, true, "query", r.URL.Query(), &params.Query); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, fmt.Sprintf("Invalid format for parameter query: %s", err))
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	hits, err := s.search.Search(ctx, params.Query)
	setEmbeddingHeaders(w, usage)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if hits == nil {
		hits = []record.Hit{}
	}

	writeJSON(w, http.StatusOK, SearchResponse{Hits: hits})
}

// Chat handles POST /api/chat. Validation errors are returned as JSON; once
// the stream has started, failures are sent as an error event.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequestBody
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	sse, err := newEventStream(w)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	err = s.chat.Stream(r.Context(), req.Messages, func(e chat.Event) error { return sse.Send(e) })

	switch {
	case err == nil:
	case !sse.Started():
		s.handleDomainError(w, r, err)
		return
	case r.Context().Err() != nil:
		logger.FromContext(r.Context()).Info("chat client disconnected")
		return
	default:
		logger.FromContext(r.Context()).Error("chat stream failed", zap.Error(err))
		_ = sse.Send(streamError{Type: "error", Message: safeDomainMessage(err)})
	}
	_ = sse.Done()
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, HealthResponse{Status: string(report.Status), Checks: checks})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// Info handles GET /.
func (s *Server) Info(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, InfoResponse{Name: "bookmarkd", Version: version.Version, Commit: version.Commit})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

func setEmbeddingHeaders(w http.ResponseWriter, usage *domain.RequestUsage) {
	if usage != nil && usage.Used {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(usage.TotalTokens))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrValidation,
		domain.ErrUnauthorized,
		domain.ErrConflict,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return detail(err, s)
		}
	}
	return "internal error"
}

// detail keeps the validation reason, which is written for clients.
func detail(err, sentinel error) string {
	if sentinel == domain.ErrValidation {
		return err.Error()
	}
	return sentinel.Error()
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			log.Warn("domain error", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
}
