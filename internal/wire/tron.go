package wire

import "time"

// TronEventType discriminates TronEvent variants on the wire.
type TronEventType string

// Base carries the fields every TronEvent variant includes (spec §4.H):
// the session it belongs to and an ISO-8601 timestamp.
type Base struct {
	SessionID string    `json:"sessionId"`
	Timestamp time.Time `json:"timestamp"`
}

// TronEvent is implemented by every persisted/broadcast agent-lifecycle
// variant. The set is compile-time closed: TronType and GetBase are the
// two accessors spec §4.H calls for ("a single accessor returns the
// base; another returns the type discriminator"). Exhaustive switches
// over TronType() are how serialization and the broadcast hub cover
// every case; adding a variant means adding a case everywhere a
// compiler-enforced switch exists, per the closed-enumeration design.
type TronEvent interface {
	TronType() TronEventType
	GetBase() Base
}

// Compaction reasons (spec §6.3).
const (
	CompactionPreTurnGuardrail   = "pre_turn_guardrail"
	CompactionThresholdExceeded = "threshold_exceeded"
	CompactionManual            = "manual"
)

// Hook results (spec §6.3).
const (
	HookResultContinue = "continue"
	HookResultBlock    = "block"
	HookResultModify   = "modify"
	HookResultError    = "error"
)

const (
	TypeAgentStart        TronEventType = "agent_start"
	TypeAgentEnd          TronEventType = "agent_end"
	TypeAgentReady        TronEventType = "agent_ready"
	TypeAgentInterrupted  TronEventType = "agent_interrupted"
	TypeTurnStart         TronEventType = "turn_start"
	TypeTurnEnd           TronEventType = "turn_end"
	TypeAgentTurnFailed   TronEventType = "agent.turn_failed"
	TypeResponseComplete  TronEventType = "response_complete"
	TypeMessageUpdate     TronEventType = "message_update"
	TypeToolUseBatch      TronEventType = "tool_use_batch"
	TypeToolExecutionStart TronEventType = "tool_execution_start"
	TypeToolExecutionUpdate TronEventType = "tool_execution_update"
	TypeToolExecutionEnd  TronEventType = "tool_execution_end"
	TypeToolcallDelta     TronEventType = "toolcall_delta"
	TypeToolcallGenerating TronEventType = "toolcall_generating"
	TypeHookTriggered     TronEventType = "hook_triggered"
	TypeHookCompleted     TronEventType = "hook_completed"
	TypeHookBackgroundStarted TronEventType = "hook.background_started"
	TypeHookBackgroundCompleted TronEventType = "hook.background_completed"
	TypeSessionSaved      TronEventType = "session_saved"
	TypeSessionLoaded     TronEventType = "session_loaded"
	TypeContextWarning    TronEventType = "context_warning"
	TypeCompactionStart   TronEventType = "compaction_start"
	TypeCompactionComplete TronEventType = "compaction_complete"
	TypeError             TronEventType = "error"
	TypeAPIRetry          TronEventType = "api_retry"
	TypeThinkingStart     TronEventType = "thinking_start"
	TypeThinkingDelta     TronEventType = "thinking_delta"
	TypeThinkingEnd       TronEventType = "thinking_end"
	TypeSessionCreated    TronEventType = "session_created"
	TypeSessionArchived   TronEventType = "session_archived"
	TypeSessionUnarchived TronEventType = "session_unarchived"
	TypeSessionForked     TronEventType = "session_forked"
	TypeSessionDeleted    TronEventType = "session_deleted"
	TypeSessionUpdated    TronEventType = "session_updated"
	TypeMemoryUpdating    TronEventType = "memory_updating"
	TypeMemoryUpdated     TronEventType = "memory_updated"
	TypeContextCleared    TronEventType = "context_cleared"
	TypeMessageDeleted    TronEventType = "message_deleted"
	TypeRulesLoaded       TronEventType = "rules_loaded"
	TypeRulesActivated    TronEventType = "rules_activated"
	TypeMemoryLoaded      TronEventType = "memory_loaded"
	TypeSkillRemoved      TronEventType = "skill_removed"
	TypeSubagentSpawned   TronEventType = "subagent_spawned"
	TypeSubagentStatusUpdate TronEventType = "subagent_status_update"
	TypeSubagentCompleted TronEventType = "subagent_completed"
	TypeSubagentFailed    TronEventType = "subagent_failed"
	TypeSubagentEvent     TronEventType = "subagent_event"
	TypeSubagentResultAvailable TronEventType = "subagent_result_available"
)

type AgentStart struct {
	Base
}

func (e AgentStart) TronType() TronEventType { return TypeAgentStart }
func (e AgentStart) GetBase() Base           { return e.Base }

type AgentEnd struct {
	Base
	Error *string `json:"error,omitempty"`
}

func (e AgentEnd) TronType() TronEventType { return TypeAgentEnd }
func (e AgentEnd) GetBase() Base           { return e.Base }

type AgentReady struct{ Base }

func (e AgentReady) TronType() TronEventType { return TypeAgentReady }
func (e AgentReady) GetBase() Base           { return e.Base }

type AgentInterrupted struct {
	Base
	Turn           int     `json:"turn"`
	PartialContent *string `json:"partialContent,omitempty"`
	ActiveTool     *string `json:"activeTool,omitempty"`
}

func (e AgentInterrupted) TronType() TronEventType { return TypeAgentInterrupted }
func (e AgentInterrupted) GetBase() Base           { return e.Base }

type TurnStart struct {
	Base
	Turn int `json:"turn"`
}

func (e TurnStart) TronType() TronEventType { return TypeTurnStart }
func (e TurnStart) GetBase() Base           { return e.Base }

type TurnEnd struct {
	Base
	Turn         int      `json:"turn"`
	Duration     int64    `json:"duration"`
	TokenUsage   any      `json:"tokenUsage,omitempty"`
	TokenRecord  any      `json:"tokenRecord,omitempty"`
	Cost         *float64 `json:"cost,omitempty"`
	StopReason   *string  `json:"stopReason,omitempty"`
	ContextLimit *int64   `json:"contextLimit,omitempty"`
	Model        *string  `json:"model,omitempty"`
}

func (e TurnEnd) TronType() TronEventType { return TypeTurnEnd }
func (e TurnEnd) GetBase() Base           { return e.Base }

type AgentTurnFailed struct {
	Base
	Turn           int     `json:"turn"`
	Error          string  `json:"error"`
	Code           *string `json:"code,omitempty"`
	Category       *string `json:"category,omitempty"`
	Recoverable    bool    `json:"recoverable"`
	PartialContent *string `json:"partialContent,omitempty"`
}

func (e AgentTurnFailed) TronType() TronEventType { return TypeAgentTurnFailed }
func (e AgentTurnFailed) GetBase() Base           { return e.Base }

type ResponseComplete struct {
	Base
	Turn          int    `json:"turn"`
	StopReason    string `json:"stopReason"`
	TokenUsage    any    `json:"tokenUsage,omitempty"`
	HasToolCalls  bool   `json:"hasToolCalls"`
	ToolCallCount int    `json:"toolCallCount"`
	TokenRecord   any    `json:"tokenRecord,omitempty"`
	Model         *string `json:"model,omitempty"`
}

func (e ResponseComplete) TronType() TronEventType { return TypeResponseComplete }
func (e ResponseComplete) GetBase() Base           { return e.Base }

type MessageUpdate struct {
	Base
	Content any `json:"content"`
}

func (e MessageUpdate) TronType() TronEventType { return TypeMessageUpdate }
func (e MessageUpdate) GetBase() Base           { return e.Base }

type ToolCallSummary struct {
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`
	Arguments  any    `json:"arguments,omitempty"`
}

type ToolUseBatch struct {
	Base
	ToolCalls []ToolCallSummary `json:"toolCalls"`
}

func (e ToolUseBatch) TronType() TronEventType { return TypeToolUseBatch }
func (e ToolUseBatch) GetBase() Base           { return e.Base }

type ToolExecutionStart struct {
	Base
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`
	Arguments  any    `json:"arguments,omitempty"`
}

func (e ToolExecutionStart) TronType() TronEventType { return TypeToolExecutionStart }
func (e ToolExecutionStart) GetBase() Base           { return e.Base }

type ToolExecutionUpdate struct {
	Base
	ToolCallID string `json:"toolCallId"`
	Update     any    `json:"update"`
}

func (e ToolExecutionUpdate) TronType() TronEventType { return TypeToolExecutionUpdate }
func (e ToolExecutionUpdate) GetBase() Base           { return e.Base }

type ToolExecutionEnd struct {
	Base
	ToolCallID string  `json:"toolCallId"`
	ToolName   string  `json:"toolName"`
	Duration   int64   `json:"duration"`
	IsError    *bool   `json:"isError,omitempty"`
	Result     any     `json:"result,omitempty"`
}

func (e ToolExecutionEnd) TronType() TronEventType { return TypeToolExecutionEnd }
func (e ToolExecutionEnd) GetBase() Base           { return e.Base }

type ToolcallDeltaEvent struct {
	Base
	ToolCallID     string  `json:"toolCallId"`
	ToolName       *string `json:"toolName,omitempty"`
	ArgumentsDelta string  `json:"argumentsDelta"`
}

func (e ToolcallDeltaEvent) TronType() TronEventType { return TypeToolcallDelta }
func (e ToolcallDeltaEvent) GetBase() Base           { return e.Base }

type ToolcallGenerating struct {
	Base
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`
}

func (e ToolcallGenerating) TronType() TronEventType { return TypeToolcallGenerating }
func (e ToolcallGenerating) GetBase() Base           { return e.Base }

type HookTriggered struct {
	Base
	HookNames  []string `json:"hookNames"`
	HookEvent  string   `json:"hookEvent"`
	ToolName   *string  `json:"toolName,omitempty"`
	ToolCallID *string  `json:"toolCallId,omitempty"`
}

func (e HookTriggered) TronType() TronEventType { return TypeHookTriggered }
func (e HookTriggered) GetBase() Base           { return e.Base }

type HookCompleted struct {
	Base
	HookNames  []string `json:"hookNames"`
	HookEvent  string   `json:"hookEvent"`
	ToolName   *string  `json:"toolName,omitempty"`
	ToolCallID *string  `json:"toolCallId,omitempty"`
	Result     string   `json:"result"`
	Duration   *int64   `json:"duration,omitempty"`
	Reason     *string  `json:"reason,omitempty"`
}

func (e HookCompleted) TronType() TronEventType { return TypeHookCompleted }
func (e HookCompleted) GetBase() Base           { return e.Base }

type HookBackgroundStarted struct {
	Base
	HookNames   []string `json:"hookNames"`
	HookEvent   string   `json:"hookEvent"`
	ExecutionID string   `json:"executionId"`
}

func (e HookBackgroundStarted) TronType() TronEventType { return TypeHookBackgroundStarted }
func (e HookBackgroundStarted) GetBase() Base           { return e.Base }

type HookBackgroundCompleted struct {
	Base
	ExecutionID string  `json:"executionId"`
	Result      string  `json:"result"`
	Duration    int64   `json:"duration"`
	Error       *string `json:"error,omitempty"`
}

func (e HookBackgroundCompleted) TronType() TronEventType { return TypeHookBackgroundCompleted }
func (e HookBackgroundCompleted) GetBase() Base           { return e.Base }

type SessionSaved struct{ Base }

func (e SessionSaved) TronType() TronEventType { return TypeSessionSaved }
func (e SessionSaved) GetBase() Base           { return e.Base }

type SessionLoaded struct {
	Base
	MessageCount int `json:"messageCount"`
}

func (e SessionLoaded) TronType() TronEventType { return TypeSessionLoaded }
func (e SessionLoaded) GetBase() Base           { return e.Base }

type ContextWarning struct {
	Base
	UsagePercent float64 `json:"usagePercent"`
	Message      string  `json:"message"`
}

func (e ContextWarning) TronType() TronEventType { return TypeContextWarning }
func (e ContextWarning) GetBase() Base           { return e.Base }

type CompactionStart struct {
	Base
	Reason       string `json:"reason"`
	TokensBefore int64  `json:"tokensBefore"`
}

func (e CompactionStart) TronType() TronEventType { return TypeCompactionStart }
func (e CompactionStart) GetBase() Base           { return e.Base }

type CompactionComplete struct {
	Base
	Success                bool     `json:"success"`
	TokensBefore           int64    `json:"tokensBefore"`
	TokensAfter            int64    `json:"tokensAfter"`
	CompressionRatio       float64  `json:"compressionRatio"`
	Reason                 *string  `json:"reason,omitempty"`
	Summary                *string  `json:"summary,omitempty"`
	EstimatedContextTokens *int64   `json:"estimatedContextTokens,omitempty"`
}

func (e CompactionComplete) TronType() TronEventType { return TypeCompactionComplete }
func (e CompactionComplete) GetBase() Base           { return e.Base }

type ErrorEvent struct {
	Base
	Error      string  `json:"error"`
	Context    *string `json:"context,omitempty"`
	Code       *string `json:"code,omitempty"`
	Provider   *string `json:"provider,omitempty"`
	Category   *string `json:"category,omitempty"`
	Suggestion *string `json:"suggestion,omitempty"`
	Retryable  *bool   `json:"retryable,omitempty"`
	StatusCode *int    `json:"statusCode,omitempty"`
	ErrorType  *string `json:"errorType,omitempty"`
	Model      *string `json:"model,omitempty"`
}

func (e ErrorEvent) TronType() TronEventType { return TypeError }
func (e ErrorEvent) GetBase() Base           { return e.Base }

type APIRetry struct {
	Base
	Attempt      int    `json:"attempt"`
	MaxRetries   int    `json:"maxRetries"`
	DelayMS      int64  `json:"delayMs"`
	ErrorCategory string `json:"errorCategory"`
	ErrorMessage  string `json:"errorMessage"`
}

func (e APIRetry) TronType() TronEventType { return TypeAPIRetry }
func (e APIRetry) GetBase() Base           { return e.Base }

type ThinkingStartEvent struct{ Base }

func (e ThinkingStartEvent) TronType() TronEventType { return TypeThinkingStart }
func (e ThinkingStartEvent) GetBase() Base           { return e.Base }

type ThinkingDeltaEvent struct {
	Base
	Delta string `json:"delta"`
}

func (e ThinkingDeltaEvent) TronType() TronEventType { return TypeThinkingDelta }
func (e ThinkingDeltaEvent) GetBase() Base           { return e.Base }

type ThinkingEndEvent struct {
	Base
	Thinking string `json:"thinking"`
}

func (e ThinkingEndEvent) TronType() TronEventType { return TypeThinkingEnd }
func (e ThinkingEndEvent) GetBase() Base           { return e.Base }

type SessionCreated struct {
	Base
	Model            string `json:"model"`
	WorkingDirectory string `json:"workingDirectory"`
}

func (e SessionCreated) TronType() TronEventType { return TypeSessionCreated }
func (e SessionCreated) GetBase() Base           { return e.Base }

type SessionArchived struct{ Base }

func (e SessionArchived) TronType() TronEventType { return TypeSessionArchived }
func (e SessionArchived) GetBase() Base           { return e.Base }

type SessionUnarchived struct{ Base }

func (e SessionUnarchived) TronType() TronEventType { return TypeSessionUnarchived }
func (e SessionUnarchived) GetBase() Base           { return e.Base }

type SessionForked struct {
	Base
	NewSessionID string `json:"newSessionId"`
}

func (e SessionForked) TronType() TronEventType { return TypeSessionForked }
func (e SessionForked) GetBase() Base           { return e.Base }

type SessionDeleted struct{ Base }

func (e SessionDeleted) TronType() TronEventType { return TypeSessionDeleted }
func (e SessionDeleted) GetBase() Base           { return e.Base }

type SessionUpdated struct {
	Base
	Title          *string `json:"title,omitempty"`
	MessageCount   int     `json:"messageCount"`
	LastActivityAt string  `json:"lastActivityAt"`
	Preview        *string `json:"preview,omitempty"`
}

func (e SessionUpdated) TronType() TronEventType { return TypeSessionUpdated }
func (e SessionUpdated) GetBase() Base           { return e.Base }

type MemoryUpdating struct{ Base }

func (e MemoryUpdating) TronType() TronEventType { return TypeMemoryUpdating }
func (e MemoryUpdating) GetBase() Base           { return e.Base }

type MemoryUpdated struct {
	Base
	Title     *string `json:"title,omitempty"`
	EntryType *string `json:"entryType,omitempty"`
	EventID   *string `json:"eventId,omitempty"`
}

func (e MemoryUpdated) TronType() TronEventType { return TypeMemoryUpdated }
func (e MemoryUpdated) GetBase() Base           { return e.Base }

type ContextCleared struct {
	Base
	TokensBefore int64 `json:"tokensBefore"`
	TokensAfter  int64 `json:"tokensAfter"`
}

func (e ContextCleared) TronType() TronEventType { return TypeContextCleared }
func (e ContextCleared) GetBase() Base           { return e.Base }

type MessageDeleted struct {
	Base
	TargetEventID string  `json:"targetEventId"`
	TargetType    string  `json:"targetType"`
	TargetTurn    *int    `json:"targetTurn,omitempty"`
	Reason        *string `json:"reason,omitempty"`
}

func (e MessageDeleted) TronType() TronEventType { return TypeMessageDeleted }
func (e MessageDeleted) GetBase() Base           { return e.Base }

type RulesLoaded struct {
	Base
	TotalFiles       int `json:"totalFiles"`
	DynamicRulesCount int `json:"dynamicRulesCount"`
}

func (e RulesLoaded) TronType() TronEventType { return TypeRulesLoaded }
func (e RulesLoaded) GetBase() Base           { return e.Base }

type RulesActivated struct {
	Base
	Rules          []string `json:"rules"`
	TotalActivated int      `json:"totalActivated"`
}

func (e RulesActivated) TronType() TronEventType { return TypeRulesActivated }
func (e RulesActivated) GetBase() Base           { return e.Base }

type MemoryLoaded struct {
	Base
	Count int `json:"count"`
}

func (e MemoryLoaded) TronType() TronEventType { return TypeMemoryLoaded }
func (e MemoryLoaded) GetBase() Base           { return e.Base }

type SkillRemoved struct {
	Base
	SkillName string `json:"skillName"`
}

func (e SkillRemoved) TronType() TronEventType { return TypeSkillRemoved }
func (e SkillRemoved) GetBase() Base           { return e.Base }

type SubagentSpawned struct {
	Base
	ChildSessionID string `json:"childSessionId"`
	SpawnType      string `json:"spawnType"`
	SpawnTask      string `json:"spawnTask,omitempty"`
}

func (e SubagentSpawned) TronType() TronEventType { return TypeSubagentSpawned }
func (e SubagentSpawned) GetBase() Base           { return e.Base }

type SubagentStatusUpdate struct {
	Base
	ChildSessionID string `json:"childSessionId"`
	Status         string `json:"status"`
}

func (e SubagentStatusUpdate) TronType() TronEventType { return TypeSubagentStatusUpdate }
func (e SubagentStatusUpdate) GetBase() Base           { return e.Base }

type SubagentCompleted struct {
	Base
	ChildSessionID string `json:"childSessionId"`
	Result         any    `json:"result,omitempty"`
}

func (e SubagentCompleted) TronType() TronEventType { return TypeSubagentCompleted }
func (e SubagentCompleted) GetBase() Base           { return e.Base }

type SubagentFailed struct {
	Base
	ChildSessionID string `json:"childSessionId"`
	Error          string `json:"error"`
}

func (e SubagentFailed) TronType() TronEventType { return TypeSubagentFailed }
func (e SubagentFailed) GetBase() Base           { return e.Base }

type SubagentEvent struct {
	Base
	ChildSessionID string    `json:"childSessionId"`
	Inner          TronEvent `json:"inner"`
}

func (e SubagentEvent) TronType() TronEventType { return TypeSubagentEvent }
func (e SubagentEvent) GetBase() Base           { return e.Base }

type SubagentResultAvailable struct {
	Base
	ChildSessionID string `json:"childSessionId"`
}

func (e SubagentResultAvailable) TronType() TronEventType { return TypeSubagentResultAvailable }
func (e SubagentResultAvailable) GetBase() Base           { return e.Base }
