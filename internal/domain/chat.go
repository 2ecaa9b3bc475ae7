package domain

import (
	"context"
	"encoding/json"
)

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ChatMessage is one turn of a conversation.
// ToolCalls is set on assistant turns that request tools; ToolCallID on tool results.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a function invocation requested by the model. Arguments is raw JSON.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolSpec advertises a callable function to the model.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  json.RawMessage // JSON Schema object
}

// ChatRequest is one completion round.
type ChatRequest struct {
	Messages []ChatMessage
	Tools    []ToolSpec
}

// ChatCompletion is the assembled result of a streamed round.
type ChatCompletion struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
}

// ChatCompleter streams a completion. onDelta receives content fragments as they arrive;
// a non-nil error from onDelta aborts the stream.
type ChatCompleter interface {
	StreamChat(ctx context.Context, req ChatRequest, onDelta func(string) error) (ChatCompletion, error)
}
