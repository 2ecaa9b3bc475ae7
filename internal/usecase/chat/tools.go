package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/bookmarkd/internal/domain"
	"github.com/kailas-cloud/bookmarkd/internal/logger"
	"github.com/kailas-cloud/bookmarkd/internal/metrics"
)

// Tool names exposed to the model.
const (
	ToolSearchBookmarks = "searchBookmarks"
	ToolCreateBookmark  = "createBookmark"
)

var toolSpecs = []domain.ToolSpec{
	{
		Name:        ToolSearchBookmarks,
		Description: "Search through the user's bookmarks for relevant content",
		Parameters: json.RawMessage(`{"type":"object","properties":{"query":` +
			`{"type":"string","description":"The search query to find relevant bookmarks"}},` +
			`"required":["query"],"additionalProperties":false}`),
	},
	{
		Name:        ToolCreateBookmark,
		Description: "Save a url to the user's bookmarks. The page is fetched and indexed in the background",
		Parameters: json.RawMessage(`{"type":"object","properties":{"url":` +
			`{"type":"string","description":"The absolute http(s) url to bookmark"}},` +
			`"required":["url"],"additionalProperties":false}`),
	},
}

// searchHit is what the model sees for one result.
type searchHit struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type toolError struct {
	Error string `json:"error"`
}

// runTool executes call and returns its JSON result. Failures are reported
// to the model as {"error": ...} rather than aborting the conversation.
func (s *Service) runTool(ctx context.Context, call domain.ToolCall) json.RawMessage {
	var (
		result any
		status = "success"
	)

	switch call.Name {
	case ToolSearchBookmarks:
		result = s.searchTool(ctx, call.Arguments)
	case ToolCreateBookmark:
		result = s.createTool(ctx, call.Arguments)
	default:
		result = toolError{Error: fmt.Sprintf("unknown tool %q", call.Name)}
	}
	if _, failed := result.(toolError); failed {
		status = "error"
	}
	metrics.ChatToolCallsTotal.WithLabelValues(call.Name, status).Inc()

	b, err := json.Marshal(result)
	if err != nil {
		return json.RawMessage(`{"error":"internal error"}`)
	}
	return b
}

func (s *Service) searchTool(ctx context.Context, args string) any {
	var in struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(args), &in); err != nil {
		return toolError{Error: "invalid arguments: query is required"}
	}

	hits, err := s.searcher.SearchTopK(ctx, in.Query, s.topK)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return toolError{Error: "query must be between 2 and 100 characters"}
		}
		logger.FromContext(ctx).Error("chat search tool", zap.Error(err))
		return toolError{Error: "Failed to search bookmarks"}
	}

	out := make([]searchHit, 0, len(hits))
	for _, h := range hits {
		out = append(out, searchHit{Title: h.Fields.Title, URL: h.Fields.URL, Content: h.Fields.Text, Score: h.Score})
	}
	return out
}

func (s *Service) createTool(ctx context.Context, args string) any {
	var in struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal([]byte(args), &in); err != nil {
		return toolError{Error: "invalid arguments: url is required"}
	}

	handle, err := s.creator.Create(ctx, in.URL)
	switch {
	case err == nil:
		return handle
	case errors.Is(err, domain.ErrValidation):
		return toolError{Error: "invalid url"}
	case errors.Is(err, domain.ErrConflict):
		return toolError{Error: "bookmark already exists"}
	default:
		logger.FromContext(ctx).Error("chat create tool", zap.Error(err))
		return toolError{Error: "Failed to create bookmark"}
	}
}
