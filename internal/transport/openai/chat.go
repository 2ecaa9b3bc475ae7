package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/bookmarkd/internal/domain"
	"github.com/kailas-cloud/bookmarkd/internal/metrics"
)

var _ domain.ChatCompleter = (*Chat)(nil)

// Chat streams chat completions with function tools.
type Chat struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewChat creates a chat completion client.
func NewChat(cfg *Config) *Chat {
	return &Chat{client: newClient(cfg), model: cfg.Model, logger: cfg.Logger}
}

// StreamChat runs one streamed completion round and assembles tool calls from their deltas.
func (c *Chat) StreamChat(
	ctx context.Context, req domain.ChatRequest, onDelta func(string) error,
) (domain.ChatCompletion, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: toMessages(req.Messages),
		Tools:    toTools(req.Tools),
		Stream:   true,
	})
	if err != nil {
		metrics.ChatRequestsTotal.WithLabelValues(c.model, "error").Inc()
		return domain.ChatCompletion{}, parseAPIError("chat", err, domain.ErrChatProvider)
	}
	defer func() { _ = stream.Close() }()

	var (
		content strings.Builder
		calls   = map[int]*domain.ToolCall{}
		finish  string
	)
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			metrics.ChatRequestsTotal.WithLabelValues(c.model, "error").Inc()
			return domain.ChatCompletion{}, parseAPIError("chat", err, domain.ErrChatProvider)
		}
		if len(resp.Choices) == 0 {
			continue
		}

		choice := resp.Choices[0]
		if choice.FinishReason != "" {
			finish = string(choice.FinishReason)
		}
		if d := choice.Delta.Content; d != "" {
			content.WriteString(d)
			if onDelta != nil {
				if err := onDelta(d); err != nil {
					return domain.ChatCompletion{}, fmt.Errorf("deliver delta: %w", err)
				}
			}
		}
		for i, tc := range choice.Delta.ToolCalls {
			idx := i
			if tc.Index != nil {
				idx = *tc.Index
			}
			acc, ok := calls[idx]
			if !ok {
				acc = &domain.ToolCall{}
				calls[idx] = acc
			}
			if tc.ID != "" {
				acc.ID = tc.ID
			}
			if tc.Function.Name != "" {
				acc.Name = tc.Function.Name
			}
			acc.Arguments += tc.Function.Arguments
		}
	}

	metrics.ChatRequestsTotal.WithLabelValues(c.model, "success").Inc()
	return domain.ChatCompletion{
		Content:      content.String(),
		ToolCalls:    orderedCalls(calls),
		FinishReason: finish,
	}, nil
}

func orderedCalls(calls map[int]*domain.ToolCall) []domain.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	idx := make([]int, 0, len(calls))
	for i := range calls {
		idx = append(idx, i)
	}
	sort.Ints(idx)

	out := make([]domain.ToolCall, 0, len(idx))
	for _, i := range idx {
		out = append(out, *calls[i])
	}
	return out
}

func toMessages(msgs []domain.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		msg := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func toTools(specs []domain.ToolSpec) []openai.Tool {
	if len(specs) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(specs))
	for _, s := range specs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Parameters,
			},
		})
	}
	return out
}
