package orchestrator

import (
	"context"
	"encoding/json"
	"io"

	"github.com/cloudwego/eino/schema"

	"github.com/tron-run/tron/internal/broadcast"
	"github.com/tron-run/tron/internal/eventstore"
	"github.com/tron-run/tron/internal/provider"
	"github.com/tron-run/tron/internal/wire"
)

// streamResult is what processStream hands back to the loop: the
// content blocks to persist as the assistant message, the finish
// reason, token usage, the tool calls the model requested, and the
// wire.StreamEvent transcript (for tests and local observability —
// never persisted, per wire's package doc).
type streamResult struct {
	content      []any
	finishReason string
	usage        eventstore.TokenUsage
	toolCalls    []schema.ToolCall
	transcript   []wire.StreamEvent
}

type pendingToolCall struct {
	id   string
	name string
	args string
}

// processStream drains a completion stream chunk by chunk. Tool calls
// are tracked by Index per Eino's streaming model: the chunk that
// starts a call carries ID and Function.Name, every later chunk for the
// same Index carries only a Function.Arguments delta — mirroring the
// teacher's own Index-based accumulation in its session/stream.go. Each
// delta is also recorded as a wire.StreamEvent and the nearest
// wire.TronEvent is broadcast over hub immediately.
func processStream(ctx context.Context, stream *provider.CompletionStream, hub *broadcast.Hub, sessionID string) (streamResult, error) {
	var (
		text         string
		textStarted  bool
		usage        eventstore.TokenUsage
		finishReason string
		transcript   []wire.StreamEvent
	)

	byIndex := make(map[int]*pendingToolCall)
	var order []int

	for {
		select {
		case <-ctx.Done():
			return streamResult{}, ctx.Err()
		default:
		}

		msg, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			hub.Publish(wire.ErrorEvent{Base: base(sessionID), Error: err.Error()})
			return streamResult{}, err
		}

		if msg.Content != "" {
			if !textStarted {
				textStarted = true
				transcript = append(transcript, wire.TextStart{})
			}
			transcript = append(transcript, wire.TextDelta{Text: msg.Content})
			text += msg.Content
			hub.Publish(wire.MessageUpdate{Base: base(sessionID), Content: text})
		}

		for _, tc := range msg.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			pc, exists := byIndex[idx]
			if !exists {
				pc = &pendingToolCall{id: tc.ID, name: tc.Function.Name}
				byIndex[idx] = pc
				order = append(order, idx)
			}
			if tc.ID != "" {
				pc.id = tc.ID
			}
			if tc.Function.Name != "" {
				pc.name = tc.Function.Name
			}
			if pc.id != "" && pc.name != "" && !exists {
				transcript = append(transcript, wire.ToolcallStart{ToolCallID: pc.id, ToolName: pc.name})
				hub.Publish(wire.ToolcallGenerating{Base: base(sessionID), ToolCallID: pc.id, ToolName: pc.name})
			}
			if tc.Function.Arguments != "" {
				pc.args += tc.Function.Arguments
				transcript = append(transcript, wire.ToolcallDelta{ToolCallID: pc.id, ToolName: pc.name, ArgumentsDelta: tc.Function.Arguments})
				toolName := pc.name
				hub.Publish(wire.ToolcallDeltaEvent{Base: base(sessionID), ToolCallID: pc.id, ToolName: &toolName, ArgumentsDelta: tc.Function.Arguments})
			}
		}

		if msg.ResponseMeta != nil {
			if msg.ResponseMeta.Usage != nil {
				usage.InputTokens = int64(msg.ResponseMeta.Usage.PromptTokens)
				usage.OutputTokens = int64(msg.ResponseMeta.Usage.CompletionTokens)
			}
			if msg.ResponseMeta.FinishReason != "" {
				finishReason = msg.ResponseMeta.FinishReason
			}
		}
	}

	if textStarted {
		transcript = append(transcript, wire.TextEnd{})
	}

	var content []any
	if text != "" {
		content = append(content, map[string]any{"type": "text", "text": text})
	}

	var calls []schema.ToolCall
	for _, idx := range order {
		pc := byIndex[idx]
		transcript = append(transcript, wire.ToolcallEnd{ToolCallID: pc.id})

		var input map[string]any
		_ = json.Unmarshal([]byte(pc.args), &input)
		content = append(content, map[string]any{"type": "tool_use", "id": pc.id, "name": pc.name, "input": input})
		calls = append(calls, schema.ToolCall{ID: pc.id, Function: schema.FunctionCall{Name: pc.name, Arguments: pc.args}})
	}

	switch {
	case finishReason == "" && len(calls) > 0:
		finishReason = "tool_use"
	case finishReason == "":
		finishReason = "stop"
	case finishReason == "tool_calls":
		finishReason = "tool_use"
	}

	transcript = append(transcript, wire.Done{})

	return streamResult{
		content:      content,
		finishReason: finishReason,
		usage:        usage,
		toolCalls:    calls,
		transcript:   transcript,
	}, nil
}
