package wire

import (
	"encoding/json"
	"fmt"
)

// Envelope marshals any TronEvent into the wire shape spec §6.3 requires:
// the discriminator and base fields flattened alongside the variant's own
// fields, not nested under a "data" key.
func Envelope(e TronEvent) ([]byte, error) {
	variant, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal variant %s: %w", e.TronType(), err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(variant, &fields); err != nil {
		return nil, err
	}

	base := e.GetBase()
	fields["type"], _ = json.Marshal(e.TronType())
	fields["sessionId"], _ = json.Marshal(base.SessionID)
	fields["timestamp"], _ = json.Marshal(base.Timestamp)

	return json.Marshal(fields)
}

// typeRegistry maps every discriminator to a zero-value constructor, the
// single source of truth the spec's "exhaustive enumeration" requirement
// calls for: adding a variant means adding one line here as well as the
// struct and its TronType/GetBase methods in tron.go.
var typeRegistry = map[TronEventType]func() TronEvent{
	TypeAgentStart:              func() TronEvent { return &AgentStart{} },
	TypeAgentEnd:                func() TronEvent { return &AgentEnd{} },
	TypeAgentReady:               func() TronEvent { return &AgentReady{} },
	TypeAgentInterrupted:        func() TronEvent { return &AgentInterrupted{} },
	TypeTurnStart:                func() TronEvent { return &TurnStart{} },
	TypeTurnEnd:                  func() TronEvent { return &TurnEnd{} },
	TypeAgentTurnFailed:         func() TronEvent { return &AgentTurnFailed{} },
	TypeResponseComplete:        func() TronEvent { return &ResponseComplete{} },
	TypeMessageUpdate:           func() TronEvent { return &MessageUpdate{} },
	TypeToolUseBatch:             func() TronEvent { return &ToolUseBatch{} },
	TypeToolExecutionStart:      func() TronEvent { return &ToolExecutionStart{} },
	TypeToolExecutionUpdate:     func() TronEvent { return &ToolExecutionUpdate{} },
	TypeToolExecutionEnd:        func() TronEvent { return &ToolExecutionEnd{} },
	TypeToolcallDelta:            func() TronEvent { return &ToolcallDeltaEvent{} },
	TypeToolcallGenerating:       func() TronEvent { return &ToolcallGenerating{} },
	TypeHookTriggered:            func() TronEvent { return &HookTriggered{} },
	TypeHookCompleted:            func() TronEvent { return &HookCompleted{} },
	TypeHookBackgroundStarted:   func() TronEvent { return &HookBackgroundStarted{} },
	TypeHookBackgroundCompleted: func() TronEvent { return &HookBackgroundCompleted{} },
	TypeSessionSaved:             func() TronEvent { return &SessionSaved{} },
	TypeSessionLoaded:            func() TronEvent { return &SessionLoaded{} },
	TypeContextWarning:           func() TronEvent { return &ContextWarning{} },
	TypeCompactionStart:          func() TronEvent { return &CompactionStart{} },
	TypeCompactionComplete:       func() TronEvent { return &CompactionComplete{} },
	TypeError:                    func() TronEvent { return &ErrorEvent{} },
	TypeAPIRetry:                 func() TronEvent { return &APIRetry{} },
	TypeThinkingStart:            func() TronEvent { return &ThinkingStartEvent{} },
	TypeThinkingDelta:            func() TronEvent { return &ThinkingDeltaEvent{} },
	TypeThinkingEnd:              func() TronEvent { return &ThinkingEndEvent{} },
	TypeSessionCreated:           func() TronEvent { return &SessionCreated{} },
	TypeSessionArchived:          func() TronEvent { return &SessionArchived{} },
	TypeSessionUnarchived:        func() TronEvent { return &SessionUnarchived{} },
	TypeSessionForked:            func() TronEvent { return &SessionForked{} },
	TypeSessionDeleted:           func() TronEvent { return &SessionDeleted{} },
	TypeSessionUpdated:           func() TronEvent { return &SessionUpdated{} },
	TypeMemoryUpdating:           func() TronEvent { return &MemoryUpdating{} },
	TypeMemoryUpdated:            func() TronEvent { return &MemoryUpdated{} },
	TypeContextCleared:           func() TronEvent { return &ContextCleared{} },
	TypeMessageDeleted:           func() TronEvent { return &MessageDeleted{} },
	TypeRulesLoaded:              func() TronEvent { return &RulesLoaded{} },
	TypeRulesActivated:           func() TronEvent { return &RulesActivated{} },
	TypeMemoryLoaded:             func() TronEvent { return &MemoryLoaded{} },
	TypeSkillRemoved:             func() TronEvent { return &SkillRemoved{} },
	TypeSubagentSpawned:          func() TronEvent { return &SubagentSpawned{} },
	TypeSubagentStatusUpdate:    func() TronEvent { return &SubagentStatusUpdate{} },
	TypeSubagentCompleted:       func() TronEvent { return &SubagentCompleted{} },
	TypeSubagentFailed:          func() TronEvent { return &SubagentFailed{} },
	TypeSubagentResultAvailable: func() TronEvent { return &SubagentResultAvailable{} },
}

// Parse decodes a wire envelope back into its concrete TronEvent variant.
// Unknown discriminators are an error: the enumeration is closed, unlike
// the persisted event-type column which preserves unknown types verbatim.
func Parse(data []byte) (TronEvent, error) {
	var head struct {
		Type TronEventType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("parse envelope head: %w", err)
	}
	ctor, ok := typeRegistry[head.Type]
	if !ok {
		return nil, fmt.Errorf("unknown TronEvent type %q", head.Type)
	}
	ev := ctor()
	if err := json.Unmarshal(data, ev); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", head.Type, err)
	}
	return derefEvent(ev), nil
}

// derefEvent dereferences the pointer Parse builds so callers receive the
// same value type TronType()/GetBase() are defined on.
func derefEvent(e TronEvent) TronEvent {
	switch v := e.(type) {
	case *AgentStart:
		return *v
	case *AgentEnd:
		return *v
	case *AgentReady:
		return *v
	case *AgentInterrupted:
		return *v
	case *TurnStart:
		return *v
	case *TurnEnd:
		return *v
	case *AgentTurnFailed:
		return *v
	case *ResponseComplete:
		return *v
	case *MessageUpdate:
		return *v
	case *ToolUseBatch:
		return *v
	case *ToolExecutionStart:
		return *v
	case *ToolExecutionUpdate:
		return *v
	case *ToolExecutionEnd:
		return *v
	case *ToolcallDeltaEvent:
		return *v
	case *ToolcallGenerating:
		return *v
	case *HookTriggered:
		return *v
	case *HookCompleted:
		return *v
	case *HookBackgroundStarted:
		return *v
	case *HookBackgroundCompleted:
		return *v
	case *SessionSaved:
		return *v
	case *SessionLoaded:
		return *v
	case *ContextWarning:
		return *v
	case *CompactionStart:
		return *v
	case *CompactionComplete:
		return *v
	case *ErrorEvent:
		return *v
	case *APIRetry:
		return *v
	case *ThinkingStartEvent:
		return *v
	case *ThinkingDeltaEvent:
		return *v
	case *ThinkingEndEvent:
		return *v
	case *SessionCreated:
		return *v
	case *SessionArchived:
		return *v
	case *SessionUnarchived:
		return *v
	case *SessionForked:
		return *v
	case *SessionDeleted:
		return *v
	case *SessionUpdated:
		return *v
	case *MemoryUpdating:
		return *v
	case *MemoryUpdated:
		return *v
	case *ContextCleared:
		return *v
	case *MessageDeleted:
		return *v
	case *RulesLoaded:
		return *v
	case *RulesActivated:
		return *v
	case *MemoryLoaded:
		return *v
	case *SkillRemoved:
		return *v
	case *SubagentSpawned:
		return *v
	case *SubagentStatusUpdate:
		return *v
	case *SubagentCompleted:
		return *v
	case *SubagentFailed:
		return *v
	case *SubagentResultAvailable:
		return *v
	default:
		return e
	}
}
