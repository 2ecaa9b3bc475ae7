// Package chat runs the bookmark assistant: a streamed LLM conversation with
// tools for searching and saving bookmarks.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kailas-cloud/bookmarkd/internal/domain"
)

// Event types sent to the client.
const (
	EventContent    = "content"
	EventToolCall   = "tool_call"
	EventToolResult = "tool_result"
	EventDone       = "done"
)

// Event is one streamed update.
type Event struct {
	Type         string          `json:"type"`
	Delta        string          `json:"delta,omitempty"`
	ToolCallID   string          `json:"tool_call_id,omitempty"`
	Name         string          `json:"name,omitempty"`
	Arguments    string          `json:"arguments,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	FinishReason string          `json:"finish_reason,omitempty"`
}

// Config holds assistant settings.
type Config struct {
	SystemPrompt  string
	TopK          int
	MaxToolRounds int
}

// Service drives the tool-calling loop.
type Service struct {
	llm       domain.ChatCompleter
	searcher  Searcher
	creator   Creator
	system    string
	topK      int
	maxRounds int
}

// New creates a chat service.
func New(llm domain.ChatCompleter, searcher Searcher, creator Creator, cfg Config) *Service {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = 5
	}
	return &Service{
		llm:       llm,
		searcher:  searcher,
		creator:   creator,
		system:    cfg.SystemPrompt,
		topK:      cfg.TopK,
		maxRounds: cfg.MaxToolRounds,
	}
}

// Stream answers the conversation, calling emit for every event. Tool calls
// requested by the model are executed and fed back until it produces a plain
// answer. The last allowed round is sent without tools.
func (s *Service) Stream(ctx context.Context, messages []domain.ChatMessage, emit func(Event) error) error {
	if err := validateMessages(messages); err != nil {
		return err
	}

	history := make([]domain.ChatMessage, 0, len(messages)+1)
	if s.system != "" {
		history = append(history, domain.ChatMessage{Role: domain.RoleSystem, Content: s.system})
	}
	history = append(history, messages...)

	onDelta := func(delta string) error {
		return emit(Event{Type: EventContent, Delta: delta})
	}

	for round := 0; round < s.maxRounds; round++ {
		req := domain.ChatRequest{Messages: history}
		if round < s.maxRounds-1 {
			req.Tools = toolSpecs
		}

		completion, err := s.llm.StreamChat(ctx, req, onDelta)
		if err != nil {
			return fmt.Errorf("chat round %d: %w", round, err)
		}

		if len(completion.ToolCalls) == 0 {
			return emit(Event{Type: EventDone, FinishReason: completion.FinishReason})
		}

		history = append(history, domain.ChatMessage{
			Role:      domain.RoleAssistant,
			Content:   completion.Content,
			ToolCalls: completion.ToolCalls,
		})

		for _, call := range completion.ToolCalls {
			if err := emit(Event{Type: EventToolCall, ToolCallID: call.ID, Name: call.Name, Arguments: call.Arguments}); err != nil {
				return err
			}
			result := s.runTool(ctx, call)
			if err := emit(Event{Type: EventToolResult, ToolCallID: call.ID, Name: call.Name, Result: result}); err != nil {
				return err
			}
			history = append(history, domain.ChatMessage{
				Role:       domain.RoleTool,
				Content:    string(result),
				ToolCallID: call.ID,
			})
		}
	}

	return emit(Event{Type: EventDone, FinishReason: "tool_rounds_exhausted"})
}

// validateMessages accepts client history: user turns, assistant turns (text or
// tool calls), and tool results answering an earlier assistant tool call.
// System turns are refused; the service owns the system prompt.
func validateMessages(messages []domain.ChatMessage) error {
	if len(messages) == 0 {
		return fmt.Errorf("%w: messages are required", domain.ErrValidation)
	}
	requested := make(map[string]bool)
	for i, m := range messages {
		switch m.Role {
		case domain.RoleUser:
			if strings.TrimSpace(m.Content) == "" {
				return fmt.Errorf("%w: message %d: content is required", domain.ErrValidation, i)
			}
		case domain.RoleAssistant:
			if strings.TrimSpace(m.Content) == "" && len(m.ToolCalls) == 0 {
				return fmt.Errorf("%w: message %d: content or tool_calls is required", domain.ErrValidation, i)
			}
			for _, call := range m.ToolCalls {
				if call.ID == "" || call.Name == "" {
					return fmt.Errorf("%w: message %d: tool call needs id and name", domain.ErrValidation, i)
				}
				requested[call.ID] = true
			}
		case domain.RoleTool:
			if !requested[m.ToolCallID] {
				return fmt.Errorf("%w: message %d: tool_call_id %q answers no earlier tool call",
					domain.ErrValidation, i, m.ToolCallID)
			}
		default:
			return fmt.Errorf("%w: message %d: role must be user, assistant or tool", domain.ErrValidation, i)
		}
	}
	return nil
}
