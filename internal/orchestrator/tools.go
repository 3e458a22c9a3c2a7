package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/tron-run/tron/internal/agent"
	"github.com/tron-run/tron/internal/eventstore"
	"github.com/tron-run/tron/internal/guardrail"
	"github.com/tron-run/tron/internal/tool"
	"github.com/tron-run/tron/internal/wire"
)

// doomLoopThreshold blocks a tool call once it repeats identically this
// many times in a row, independent of guardrail rules.
const doomLoopThreshold = 3

func (p *Processor) executeToolCalls(ctx context.Context, sessionID string, ag *agent.Agent, state *sessionState, calls []schema.ToolCall) error {
	for _, call := range calls {
		if err := p.executeSingleTool(ctx, sessionID, ag, state, call); err != nil {
			return err
		}
	}
	return nil
}

type toolOutcome struct {
	output  string
	isError bool
}

func (p *Processor) executeSingleTool(ctx context.Context, sessionID string, ag *agent.Agent, state *sessionState, call schema.ToolCall) error {
	name := call.Function.Name
	var args map[string]any
	_ = json.Unmarshal([]byte(call.Function.Arguments), &args)

	callPayload, _ := json.Marshal(map[string]any{
		"toolCallId": call.ID, "toolName": name, "arguments": args,
	})
	if _, err := p.events.Append(ctx, eventstore.AppendParams{SessionID: sessionID, Type: eventstore.EventToolCall, Payload: callPayload}); err != nil {
		return fmt.Errorf("persist tool call: %w", err)
	}

	p.hub.Publish(wire.ToolExecutionStart{Base: base(sessionID), ToolCallID: call.ID, ToolName: name, Arguments: args})
	start := time.Now()

	outcome := p.runTool(ctx, sessionID, ag, state, call.ID, name, args)

	p.hub.Publish(wire.ToolExecutionEnd{
		Base: base(sessionID), ToolCallID: call.ID, ToolName: name,
		Duration: time.Since(start).Milliseconds(), IsError: &outcome.isError, Result: outcome.output,
	})

	resultPayload, _ := json.Marshal(map[string]any{
		"toolCallId": call.ID, "content": outcome.output, "isError": outcome.isError,
	})
	_, err := p.events.Append(ctx, eventstore.AppendParams{SessionID: sessionID, Type: eventstore.EventToolResult, Payload: resultPayload})
	return err
}

func (p *Processor) runTool(ctx context.Context, sessionID string, ag *agent.Agent, state *sessionState, callID, name string, args map[string]any) toolOutcome {
	if ag != nil && !ag.ToolEnabled(name) {
		return toolOutcome{output: fmt.Sprintf("tool %q is not enabled for agent %q", name, ag.Name), isError: true}
	}

	if p.isDoomLoop(state, name, args) {
		return toolOutcome{output: fmt.Sprintf("tool %q repeated identically %d times in a row; refusing to continue", name, doomLoopThreshold), isError: true}
	}

	verdict := p.guardrails.Evaluate(guardrail.EvalContext{SessionID: sessionID, ToolName: name, WorkDir: p.workDir, Arguments: args})
	if verdict.Blocked {
		return toolOutcome{output: verdict.BlockReason, isError: true}
	}

	t, ok := p.tools.Get(name)
	if !ok {
		return toolOutcome{output: fmt.Sprintf("unknown tool %q", name), isError: true}
	}

	agentName := ""
	if ag != nil {
		agentName = ag.Name
	}
	input, _ := json.Marshal(args)
	toolCtx := &tool.Context{
		SessionID: sessionID,
		CallID:    callID,
		Agent:     agentName,
		WorkDir:   p.workDir,
		AbortCh:   state.ctx.Done(),
		OnMetadata: func(title string, meta map[string]any) {
			p.hub.Publish(wire.ToolExecutionUpdate{
				Base: base(sessionID), ToolCallID: callID,
				Update: map[string]any{"title": title, "metadata": meta},
			})
		},
	}

	result, err := t.Execute(ctx, input, toolCtx)
	if err != nil {
		return toolOutcome{output: err.Error(), isError: true}
	}
	if result.Error != nil {
		return toolOutcome{output: result.Output, isError: true}
	}
	return toolOutcome{output: result.Output}
}

// isDoomLoop fingerprints name+args and reports whether it has now
// repeated doomLoopThreshold times in a row for this loop.
func (p *Processor) isDoomLoop(state *sessionState, name string, args map[string]any) bool {
	raw, _ := json.Marshal(args)
	fingerprint := name + ":" + string(raw)
	if fingerprint == state.lastToolFingerprint {
		state.repeatCount++
	} else {
		state.lastToolFingerprint = fingerprint
		state.repeatCount = 1
	}
	return state.repeatCount >= doomLoopThreshold
}
