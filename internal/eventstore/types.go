package eventstore

import (
	"regexp"
	"time"
)

// EventType enumerates the persisted event types consumed by
// reconstruction and indexing (spec §6.2). Unknown types encountered on
// read are preserved verbatim and simply ignored by reconstruction; this
// list is the set the store itself knows how to derive counters from.
type EventType string

const (
	EventSessionStart      EventType = "session.start"
	EventSessionFork       EventType = "session.fork"
	EventMessageUser       EventType = "message.user"
	EventMessageAssistant  EventType = "message.assistant"
	EventToolCall          EventType = "tool.call"
	EventToolResult        EventType = "tool.result"
	EventMessageDeleted    EventType = "message.deleted"
	EventCompactSummary    EventType = "compact.summary"
	EventContextCleared    EventType = "context.cleared"
	EventConfigReasoning   EventType = "config.reasoning_level"
	EventConfigPromptUpdate EventType = "config.prompt_update"
	EventStreamTurnStart   EventType = "stream.turn_start"
	EventStreamTurnEnd     EventType = "stream.turn_end"
	EventRulesLoaded       EventType = "rules.loaded"
	EventMemoryLoaded      EventType = "memory.loaded"
	EventMetadataUpdate    EventType = "metadata.update"
)

// Workspace identifies a working directory.
type Workspace struct {
	ID        string
	Path      string
	Name      string
	CreatedAt time.Time
}

// Session is a single conversational thread.
type Session struct {
	ID                      string
	WorkspaceID             string
	LatestModel             string
	WorkingDirectory        string
	Title                   *string
	HeadEventID             *string
	RootEventID             *string
	EventCount              int
	MessageCount            int
	TurnCount               int
	TotalInputTokens        int64
	TotalOutputTokens       int64
	TotalCacheReadTokens    int64
	TotalCacheCreationTokens int64
	LastTurnInputTokens     int64
	Cost                    float64
	ParentSessionID         *string
	ForkFromEventID         *string
	SpawningSessionID       *string
	SpawnType               *string
	SpawnTask               *string
	Origin                  *string
	Archived                bool
	CreatedAt               time.Time
	LastActivityAt          time.Time
	EndedAt                 *time.Time
}

// Event is an immutable appended record.
type Event struct {
	ID                  string
	SessionID           string
	ParentID            *string
	Sequence            int
	Depth               int
	Type                EventType
	Timestamp           time.Time
	WorkspaceID         string
	Payload             []byte // json
	ContentBlobID       *string
	Role                *string
	ToolName            *string
	ToolCallID          *string
	Turn                *int
	InputTokens         *int64
	OutputTokens        *int64
	CacheReadTokens     *int64
	CacheCreationTokens *int64
	Checksum            *string
	Model               *string
	LatencyMS           *int64
	StopReason          *string
	HasThinking         *bool
	ProviderType        *string
	Cost                *float64
}

// TokenUsage mirrors the `tokenUsage` payload shape events carry.
type TokenUsage struct {
	InputTokens        int64 `json:"inputTokens"`
	OutputTokens       int64 `json:"outputTokens"`
	CacheReadTokens    int64 `json:"cacheReadTokens,omitempty"`
	CacheCreationTokens int64 `json:"cacheCreationTokens,omitempty"`
}

// TokenRecord mirrors the optional `tokenRecord.computed` payload shape.
type TokenRecord struct {
	Computed struct {
		ContextWindowTokens int64 `json:"contextWindowTokens"`
	} `json:"computed"`
}

// AssistantPayload is the subset of a message.assistant event payload the
// store inspects for counter derivation.
type AssistantPayload struct {
	Turn        int          `json:"turn"`
	TokenUsage  *TokenUsage  `json:"tokenUsage,omitempty"`
	TokenRecord *TokenRecord `json:"tokenRecord,omitempty"`
	Cost        *float64     `json:"cost,omitempty"`
}

var openAIReasoningModel = regexp.MustCompile(`^o[0-9]+-`)

// inferProvider maps a model-name prefix to a provider, per spec §4.B.
func inferProvider(model string) string {
	switch {
	case hasPrefix(model, "claude-"):
		return "anthropic"
	case hasPrefix(model, "gpt-") || openAIReasoningModel.MatchString(model):
		return "openai"
	case hasPrefix(model, "gemini-"):
		return "google"
	default:
		return "anthropic"
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
