package reconstruct

import "github.com/tron-run/tron/internal/eventstore"

// metadata is pass 1's output: facts gathered once up front so pass 2
// never has to look ahead.
type metadata struct {
	deletedEventIDs map[string]bool
	toolCallArgs    map[string]any
	reasoningLevel  *string
	systemPrompt    *string
}

// Reconstruct rebuilds the canonical message sequence from an ordered
// list of ancestor events (root to target, inclusive). It never
// panics: a corrupt or partially-decodable payload degrades to its
// zero value rather than aborting reconstruction (spec §7).
func Reconstruct(ancestors []eventstore.Event) (Result, error) {
	md := collectMetadata(ancestors)
	return buildMessages(ancestors, md), nil
}

// Pass 1: deletions, tool-call argument restoration map, reasoning
// level, and system prompt resolution.
func collectMetadata(ancestors []eventstore.Event) metadata {
	md := metadata{
		deletedEventIDs: map[string]bool{},
		toolCallArgs:    map[string]any{},
	}
	for _, e := range ancestors {
		switch e.Type {
		case eventstore.EventMessageDeleted:
			p := decode[messageDeletedPayload](e.Payload)
			if p.TargetEventID != "" {
				md.deletedEventIDs[p.TargetEventID] = true
			}
		case eventstore.EventToolCall:
			p := decode[toolCallPayload](e.Payload)
			if p.ToolCallID != "" && p.Arguments != nil {
				md.toolCallArgs[p.ToolCallID] = p.Arguments
			}
		case eventstore.EventConfigReasoning:
			p := decode[configReasoningPayload](e.Payload)
			level := p.NewLevel
			md.reasoningLevel = &level
		case eventstore.EventSessionStart:
			p := decode[sessionStartPayload](e.Payload)
			if p.SystemPrompt != "" {
				prompt := p.SystemPrompt
				md.systemPrompt = &prompt
			}
		case eventstore.EventConfigPromptUpdate:
			p := decode[configPromptUpdatePayload](e.Payload)
			if p.ContentBlobID != nil {
				placeholder := "[Updated prompt - hash: " + p.NewHash + "]"
				md.systemPrompt = &placeholder
			}
		}
	}
	return md
}

// buildState is the mutable accumulator threaded through pass 2.
type buildState struct {
	combined      []MessageWithEventIDs
	tokens        eventstore.TokenUsage
	turnCount     int
	currentTurn   int
	pendingResult []pendingToolResult
}

// Pass 2: dispatch each non-deleted event by type, merging, flushing,
// and clearing buffers per the rules in spec §4.C.
func buildMessages(ancestors []eventstore.Event, md metadata) Result {
	st := &buildState{}

	for i := range ancestors {
		e := &ancestors[i]
		if md.deletedEventIDs[e.ID] {
			continue
		}
		switch e.Type {
		case eventstore.EventCompactSummary:
			handleCompactSummary(e, st)
		case eventstore.EventContextCleared:
			handleContextCleared(st)
		case eventstore.EventToolResult:
			handleToolResult(e, st)
		case eventstore.EventMessageUser:
			handleMessageUser(e, st)
		case eventstore.EventMessageAssistant:
			handleMessageAssistant(e, md, st)
		}
	}

	// End-of-stream flush: a session left mid-agentic-loop still owes
	// its pending tool results to the history.
	if len(st.pendingResult) > 0 && len(st.combined) > 0 {
		last := &st.combined[len(st.combined)-1]
		if last.Message.Role == "assistant" && contentHasToolUse(last.Message.Content) {
			flushPending(st)
		}
	}

	injectMissingToolResults(st)

	return Result{
		MessagesWithEventIDs: st.combined,
		TokenUsage:           st.tokens,
		TurnCount:            st.turnCount,
		ReasoningLevel:       md.reasoningLevel,
		SystemPrompt:         md.systemPrompt,
	}
}

func handleCompactSummary(e *eventstore.Event, st *buildState) {
	p := decode[compactSummaryPayload](e.Payload)
	st.combined = nil
	st.pendingResult = nil

	st.combined = append(st.combined,
		MessageWithEventIDs{
			Message:  Message{Role: "user", Content: CompactionSummaryPrefix + "\n\n" + p.Summary},
			EventIDs: []*string{nil},
		},
		MessageWithEventIDs{
			Message: Message{Role: "assistant", Content: []any{
				map[string]any{"type": "text", "text": CompactionAckText},
			}},
			EventIDs: []*string{nil},
		},
	)
}

func handleContextCleared(st *buildState) {
	st.combined = nil
	st.pendingResult = nil
}

func handleToolResult(e *eventstore.Event, st *buildState) {
	p := decode[toolResultPayload](e.Payload)
	st.pendingResult = append(st.pendingResult, pendingToolResult{
		toolCallID: p.ToolCallID,
		content:    p.Content,
		isError:    p.IsError,
	})
}

func handleMessageUser(e *eventstore.Event, st *buildState) {
	st.pendingResult = nil

	p := decode[messageUserPayload](e.Payload)
	id := e.ID

	if n := len(st.combined); n > 0 && st.combined[n-1].Message.Role == "user" {
		last := &st.combined[n-1]
		last.Message.Content = mergeMessageContent(last.Message.Content, p.Content, "user")
		last.EventIDs = append(last.EventIDs, &id)
	} else {
		st.combined = append(st.combined, MessageWithEventIDs{
			Message:  Message{Role: "user", Content: normalizeUserContent(p.Content)},
			EventIDs: []*string{&id},
		})
	}
	accumulateTokens(p.TokenUsage, &st.tokens)
}

func handleMessageAssistant(e *eventstore.Event, md metadata, st *buildState) {
	p := decode[messageAssistantPayload](e.Payload)
	restored := restoreTruncatedInputs(p.Content, md.toolCallArgs)
	hasToolUse := contentHasToolUse(restored)
	id := e.ID

	if n := len(st.combined); n > 0 && st.combined[n-1].Message.Role == "assistant" && len(st.pendingResult) > 0 {
		flushPending(st)
	}

	if n := len(st.combined); n > 0 && st.combined[n-1].Message.Role == "assistant" {
		last := &st.combined[n-1]
		last.Message.Content = mergeMessageContent(last.Message.Content, restored, "assistant")
		last.EventIDs = append(last.EventIDs, &id)
	} else {
		st.combined = append(st.combined, MessageWithEventIDs{
			Message:  Message{Role: "assistant", Content: restored},
			EventIDs: []*string{&id},
		})
	}

	if hasToolUse && len(st.pendingResult) > 0 {
		flushPending(st)
	}

	accumulateTokens(p.TokenUsage, &st.tokens)
	if p.Turn > st.currentTurn {
		st.currentTurn = p.Turn
		st.turnCount = p.Turn
	}
}

func flushPending(st *buildState) {
	for _, pr := range st.pendingResult {
		toolCallID, isError := pr.toolCallID, pr.isError
		st.combined = append(st.combined, MessageWithEventIDs{
			Message: Message{
				Role:       "toolResult",
				Content:    pr.content,
				ToolCallID: &toolCallID,
				IsError:    &isError,
			},
			EventIDs: []*string{nil},
		})
	}
	st.pendingResult = nil
}

func accumulateTokens(tu *eventstore.TokenUsage, totals *eventstore.TokenUsage) {
	if tu == nil {
		return
	}
	totals.InputTokens += tu.InputTokens
	totals.OutputTokens += tu.OutputTokens
	totals.CacheReadTokens += tu.CacheReadTokens
	totals.CacheCreationTokens += tu.CacheCreationTokens
}

// injectMissingToolResults scans the built sequence for assistant
// messages with unmatched tool_use blocks and splices in a synthetic
// error toolResult immediately after, preserving any real results that
// already follow (spec's "Synthetic-error injection" step).
func injectMissingToolResults(st *buildState) {
	type insertion struct {
		at   int
		msgs []MessageWithEventIDs
	}
	var insertions []insertion

	for i := range st.combined {
		if st.combined[i].Message.Role != "assistant" {
			continue
		}
		ids := extractToolUseIDs(st.combined[i].Message.Content)
		if len(ids) == 0 {
			continue
		}
		matched := map[string]bool{}
		for j := i + 1; j < len(st.combined) && st.combined[j].Message.Role == "toolResult"; j++ {
			if tcID := st.combined[j].Message.ToolCallID; tcID != nil {
				matched[*tcID] = true
			}
		}
		var synthetic []MessageWithEventIDs
		for _, id := range ids {
			if matched[id] {
				continue
			}
			tcID := id
			isErr := true
			synthetic = append(synthetic, MessageWithEventIDs{
				Message: Message{
					Role:       "toolResult",
					Content:    interruptedToolResult,
					ToolCallID: &tcID,
					IsError:    &isErr,
				},
				EventIDs: []*string{nil},
			})
		}
		if len(synthetic) > 0 {
			insertions = append(insertions, insertion{at: i + 1, msgs: synthetic})
		}
	}

	for k := len(insertions) - 1; k >= 0; k-- {
		ins := insertions[k]
		out := make([]MessageWithEventIDs, 0, len(st.combined)+len(ins.msgs))
		out = append(out, st.combined[:ins.at]...)
		out = append(out, ins.msgs...)
		out = append(out, st.combined[ins.at:]...)
		st.combined = out
	}
}

// extractToolUseIDs returns the ids of every tool_use content block.
func extractToolUseIDs(content any) []string {
	arr, ok := content.([]any)
	if !ok {
		return nil
	}
	var ids []string
	for _, b := range arr {
		block, ok := b.(map[string]any)
		if !ok || block["type"] != "tool_use" {
			continue
		}
		if id, ok := block["id"].(string); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// contentHasToolUse reports whether content is an array containing at
// least one tool_use block.
func contentHasToolUse(content any) bool {
	arr, ok := content.([]any)
	if !ok {
		return false
	}
	for _, b := range arr {
		if block, ok := b.(map[string]any); ok && block["type"] == "tool_use" {
			return true
		}
	}
	return false
}

// normalizeUserContent maps a user message's raw decoded content to an
// array of content blocks: a bare string becomes a single text block,
// arrays pass through, anything else (including nil) yields none.
func normalizeUserContent(content any) []any {
	switch v := content.(type) {
	case string:
		return []any{map[string]any{"type": "text", "text": v}}
	case []any:
		return v
	default:
		return nil
	}
}

// mergeMessageContent concatenates two same-role messages' content.
// User content is block-normalized first; assistant content is assumed
// to already be an array (restoreTruncatedInputs/raw payload).
func mergeMessageContent(existing, incoming any, role string) any {
	if role == "user" {
		merged := append(normalizeUserContent(existing), normalizeUserContent(incoming)...)
		return merged
	}
	existingArr, _ := existing.([]any)
	incomingArr, _ := incoming.([]any)
	merged := make([]any, 0, len(existingArr)+len(incomingArr))
	merged = append(merged, existingArr...)
	merged = append(merged, incomingArr...)
	return merged
}

// restoreTruncatedInputs replaces any tool_use block's input with the
// full arguments recorded by a prior tool.call event when the block
// was persisted with a truncated placeholder (spec's "compatibility"
// scenario for providers with a context-size-sensitive history).
func restoreTruncatedInputs(content any, toolCallArgs map[string]any) any {
	arr, ok := content.([]any)
	if !ok {
		return content
	}
	restored := make([]any, len(arr))
	for i, b := range arr {
		block, ok := b.(map[string]any)
		if !ok {
			restored[i] = b
			continue
		}
		isToolUse := block["type"] == "tool_use"
		input, _ := block["input"].(map[string]any)
		truncated := isToolUse && input != nil && input["_truncated"] == true
		if truncated {
			if id, ok := block["id"].(string); ok {
				if full, ok := toolCallArgs[id]; ok {
					clone := map[string]any{}
					for k, v := range block {
						clone[k] = v
					}
					clone["input"] = full
					restored[i] = clone
					continue
				}
			}
		}
		restored[i] = block
	}
	return restored
}
