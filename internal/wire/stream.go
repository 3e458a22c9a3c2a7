// Package wire defines the two closed event families that cross the
// external interface (spec §4.H): StreamEvent, fine-grained provider
// deltas that are never persisted, and TronEvent, the agent-lifecycle
// events that are both persisted and broadcast.
package wire

// StreamEventType discriminates StreamEvent variants. These discriminators
// are reserved and must never collide with a TronEvent discriminator;
// IsStreamEventType is the membership test callers use to tell the two
// families apart on a raw wire message.
type StreamEventType string

const (
	StreamStart         StreamEventType = "start"
	StreamTextStart     StreamEventType = "text_start"
	StreamTextDelta     StreamEventType = "text_delta"
	StreamTextEnd       StreamEventType = "text_end"
	StreamThinkingStart StreamEventType = "thinking_start"
	StreamThinkingDelta StreamEventType = "thinking_delta"
	StreamThinkingEnd   StreamEventType = "thinking_end"
	StreamToolcallStart StreamEventType = "toolcall_start"
	StreamToolcallDelta StreamEventType = "toolcall_delta"
	StreamToolcallEnd   StreamEventType = "toolcall_end"
	StreamDone          StreamEventType = "done"
	StreamError         StreamEventType = "error"
	StreamRetry         StreamEventType = "retry"
	StreamSafetyBlock   StreamEventType = "safety_block"
)

var streamEventTypes = map[StreamEventType]bool{
	StreamStart: true, StreamTextStart: true, StreamTextDelta: true, StreamTextEnd: true,
	StreamThinkingStart: true, StreamThinkingDelta: true, StreamThinkingEnd: true,
	StreamToolcallStart: true, StreamToolcallDelta: true, StreamToolcallEnd: true,
	StreamDone: true, StreamError: true, StreamRetry: true, StreamSafetyBlock: true,
}

// IsStreamEventType reports whether t is a reserved StreamEvent
// discriminator, so a raw wire dispatcher never confuses it with a
// TronEvent type.
func IsStreamEventType(t string) bool {
	return streamEventTypes[StreamEventType(t)]
}

// StreamEvent is implemented by every transient provider-delta variant.
// None of these are persisted; the orchestrator's driver emits them
// directly to the broadcast hub and to the reconstruction pipeline's
// caller, never to the event store.
type StreamEvent interface {
	StreamType() StreamEventType
}

type Start struct{}

func (Start) StreamType() StreamEventType { return StreamStart }

type TextStart struct{}

func (TextStart) StreamType() StreamEventType { return StreamTextStart }

type TextDelta struct {
	Text string `json:"text"`
}

func (TextDelta) StreamType() StreamEventType { return StreamTextDelta }

type TextEnd struct{}

func (TextEnd) StreamType() StreamEventType { return StreamTextEnd }

type ThinkingStart struct{}

func (ThinkingStart) StreamType() StreamEventType { return StreamThinkingStart }

type ThinkingDelta struct {
	Delta string `json:"delta"`
}

func (ThinkingDelta) StreamType() StreamEventType { return StreamThinkingDelta }

type ThinkingEnd struct {
	Thinking string `json:"thinking"`
}

func (ThinkingEnd) StreamType() StreamEventType { return StreamThinkingEnd }

type ToolcallStart struct {
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`
}

func (ToolcallStart) StreamType() StreamEventType { return StreamToolcallStart }

type ToolcallDelta struct {
	ToolCallID     string `json:"toolCallId"`
	ToolName       string `json:"toolName,omitempty"`
	ArgumentsDelta string `json:"argumentsDelta"`
}

func (ToolcallDelta) StreamType() StreamEventType { return StreamToolcallDelta }

type ToolcallEnd struct {
	ToolCallID string `json:"toolCallId"`
}

func (ToolcallEnd) StreamType() StreamEventType { return StreamToolcallEnd }

type Done struct{}

func (Done) StreamType() StreamEventType { return StreamDone }

type StreamErrorEvent struct {
	Error string `json:"error"`
}

func (StreamErrorEvent) StreamType() StreamEventType { return StreamError }

// RetryErrorDetail is the structured error nested inside a Retry event.
type RetryErrorDetail struct {
	Category    string `json:"category"`
	Message     string `json:"message"`
	IsRetryable bool   `json:"is_retryable"`
}

type Retry struct {
	Attempt    int              `json:"attempt"`
	MaxRetries int              `json:"max_retries"`
	DelayMS    int64            `json:"delay_ms"`
	Error      RetryErrorDetail `json:"error"`
}

func (Retry) StreamType() StreamEventType { return StreamRetry }

type SafetyBlock struct {
	BlockedCategories []string `json:"blocked_categories"`
	Error             string   `json:"error"`
}

func (SafetyBlock) StreamType() StreamEventType { return StreamSafetyBlock }
