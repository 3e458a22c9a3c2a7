package reconstruct

import (
	"encoding/json"

	"github.com/tron-run/tron/internal/eventstore"
)

// payload shapes, decoded on demand per event type. Fields mirror the
// wire's camelCase naming (spec §6.2/§6.3).

type sessionStartPayload struct {
	SystemPrompt string `json:"systemPrompt"`
}

type messageDeletedPayload struct {
	TargetEventID string `json:"targetEventId"`
}

type toolCallPayload struct {
	ToolCallID string `json:"toolCallId"`
	Arguments  any    `json:"arguments"`
}

type configReasoningPayload struct {
	NewLevel string `json:"newLevel"`
}

type configPromptUpdatePayload struct {
	ContentBlobID *string `json:"contentBlobId"`
	NewHash       string  `json:"newHash"`
}

type compactSummaryPayload struct {
	Summary string `json:"summary"`
}

type toolResultPayload struct {
	ToolCallID string `json:"toolCallId"`
	Content    string `json:"content"`
	IsError    bool   `json:"isError"`
}

type messageUserPayload struct {
	Content    any                    `json:"content"`
	TokenUsage *eventstore.TokenUsage `json:"tokenUsage"`
}

type messageAssistantPayload struct {
	Content    any                    `json:"content"`
	Turn       int                    `json:"turn"`
	TokenUsage *eventstore.TokenUsage `json:"tokenUsage"`
}

func decode[T any](payload []byte) T {
	var v T
	_ = json.Unmarshal(payload, &v)
	return v
}
