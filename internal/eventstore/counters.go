package eventstore

import "encoding/json"

// hotFields holds the denormalized indexing columns derived from an
// event's payload at append time (spec §3.1/§6.1).
type hotFields struct {
	role                *string
	toolName            *string
	toolCallID          *string
	turn                *int
	inputTokens         *int64
	outputTokens        *int64
	cacheReadTokens     *int64
	cacheCreationTokens *int64
	checksum            *string
	model               *string
	latencyMS           *int64
	stopReason          *string
	hasThinking         *bool
	providerType        *string
	cost                *float64
}

type rawEnvelope struct {
	Role         *string      `json:"role"`
	ToolName     *string      `json:"toolName"`
	ToolCallID   *string      `json:"toolCallId"`
	Turn         *int         `json:"turn"`
	TokenUsage   *TokenUsage  `json:"tokenUsage"`
	TokenRecord  *TokenRecord `json:"tokenRecord"`
	Checksum     *string      `json:"checksum"`
	Model        *string      `json:"model"`
	LatencyMS    *int64       `json:"latencyMs"`
	StopReason   *string      `json:"stopReason"`
	HasThinking  *bool        `json:"hasThinking"`
	ProviderType *string      `json:"providerType"`
	Cost         *float64     `json:"cost"`
}

func deriveHotFields(t EventType, payload []byte) hotFields {
	var env rawEnvelope
	_ = json.Unmarshal(payload, &env)

	h := hotFields{
		role: env.Role, toolName: env.ToolName, toolCallID: env.ToolCallID, turn: env.Turn,
		checksum: env.Checksum, model: env.Model, latencyMS: env.LatencyMS,
		stopReason: env.StopReason, hasThinking: env.HasThinking, providerType: env.ProviderType,
		cost: env.Cost,
	}
	if env.TokenUsage != nil {
		h.inputTokens = &env.TokenUsage.InputTokens
		h.outputTokens = &env.TokenUsage.OutputTokens
		h.cacheReadTokens = &env.TokenUsage.CacheReadTokens
		h.cacheCreationTokens = &env.TokenUsage.CacheCreationTokens
	}
	if h.role == nil {
		switch t {
		case EventMessageUser:
			r := "user"
			h.role = &r
		case EventMessageAssistant:
			r := "assistant"
			h.role = &r
		}
	}
	return h
}

// counterDelta is the set of per-append increments applied to a session's
// aggregate counters (spec §4.B "Counter derivation on append").
type counterDelta struct {
	messageCount        int
	turnCount           int
	inputTokens         int64
	outputTokens        int64
	cacheReadTokens     int64
	cacheCreationTokens int64
	setLastTurnInput    bool
	lastTurnInputTokens int64
	cost                float64
}

func deriveCounterDeltas(t EventType, payload []byte) counterDelta {
	var d counterDelta
	switch t {
	case EventMessageUser:
		d.messageCount = 1
		// User messages never set last_turn_input_tokens even if they
		// carry token fields (spec §4.B).
	case EventMessageAssistant:
		d.messageCount = 1
		d.turnCount = 1
		var ap AssistantPayload
		_ = json.Unmarshal(payload, &ap)
		if ap.TokenUsage != nil {
			d.inputTokens = ap.TokenUsage.InputTokens
			d.outputTokens = ap.TokenUsage.OutputTokens
			d.cacheReadTokens = ap.TokenUsage.CacheReadTokens
			d.cacheCreationTokens = ap.TokenUsage.CacheCreationTokens
		}
		if ap.TokenRecord != nil && ap.TokenRecord.Computed.ContextWindowTokens > 0 {
			d.setLastTurnInput = true
			d.lastTurnInputTokens = ap.TokenRecord.Computed.ContextWindowTokens
		} else if ap.TokenUsage != nil {
			d.setLastTurnInput = true
			d.lastTurnInputTokens = ap.TokenUsage.InputTokens
		}
		if ap.Cost != nil {
			d.cost = *ap.Cost
		}
	}
	return d
}
