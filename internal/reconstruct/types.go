// Package reconstruct rebuilds the canonical message sequence an LLM
// driver consumes from an ordered ancestor event list. It is a pure
// projection: no storage handle, no clock, no I/O — the same events
// always reconstruct to the same result, which is what makes every
// scenario in the spec's end-to-end section drive the function
// directly without a database fixture.
//
// Grounded on the teacher's absence of an equivalent (go-opencode keeps
// a flat message history per session and never replays from events) and
// on the original Rust `tron-events::reconstruct` implementation, which
// this package follows step for step.
package reconstruct

import "github.com/tron-run/tron/internal/eventstore"

// Prefix and fixed acknowledgement text for synthetic compaction
// messages (matches the constants the original TypeScript/Rust
// implementations share).
const (
	CompactionSummaryPrefix = "[Context from earlier in this conversation]"
	CompactionAckText       = "I understand the previous context. Let me continue helping you."
	interruptedToolResult   = "Tool execution was interrupted."
)

// Message is a reconstructed entry in the canonical history. Content is
// the decoded JSON value (string, []any, or nil) rather than raw bytes,
// since reconstruction normalizes and merges it in place.
type Message struct {
	Role       string
	Content    any
	ToolCallID *string
	IsError    *bool
}

// MessageWithEventIDs pairs a message with the ids of every source
// event that contributed to it, in order. Synthetic messages (the
// compaction pair, injected tool results) carry a single nil.
type MessageWithEventIDs struct {
	Message  Message
	EventIDs []*string
}

// Result is the full output of Reconstruct. TokenUsage reuses the
// eventstore wire shape so counter-derivation and reconstruction agree
// on field names without a second conversion.
type Result struct {
	MessagesWithEventIDs []MessageWithEventIDs
	TokenUsage           eventstore.TokenUsage
	TurnCount            int
	ReasoningLevel       *string
	SystemPrompt         *string
}

// pendingToolResult is a tool.result event accumulated between the
// assistant message that requested it and the next message flush point.
type pendingToolResult struct {
	toolCallID string
	content    string
	isError    bool
}
