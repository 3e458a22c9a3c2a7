package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/tron-run/tron/internal/agent"
	"github.com/tron-run/tron/internal/guardrail"
)

func newTestState() *sessionState {
	ctx, cancel := context.WithCancel(context.Background())
	return &sessionState{ctx: ctx, cancel: cancel}
}

func TestRunTool_UnknownToolErrors(t *testing.T) {
	proc, _, _, _ := newTestProcessor(t)
	state := newTestState()

	outcome := proc.runTool(context.Background(), "sess-1", nil, state, "call-1", "does-not-exist", nil)
	if !outcome.isError {
		t.Fatalf("expected an error outcome for an unknown tool")
	}
}

func TestRunTool_DisabledForAgentErrors(t *testing.T) {
	proc, _, _, _ := newTestProcessor(t)
	rt := &recordingTool{id: "danger"}
	proc.tools.Register(rt)
	state := newTestState()

	ag := &agent.Agent{Name: "locked-down", Tools: map[string]bool{"danger": false}}
	outcome := proc.runTool(context.Background(), "sess-1", ag, state, "call-1", "danger", nil)
	if !outcome.isError {
		t.Fatalf("expected tool disabled for this agent to error")
	}
	if len(rt.calls) != 0 {
		t.Fatalf("expected the tool to never execute once disabled, got %d calls", len(rt.calls))
	}
}

func TestRunTool_GuardrailBlocksCall(t *testing.T) {
	proc, _, _, _ := newTestProcessor(t)
	rt := &recordingTool{id: "risky"}
	proc.tools.Register(rt)
	blockReason := "blocked by policy for tests"
	if err := proc.guardrails.Register(&guardrail.Rule{
		ID:       "test.block-risky",
		Tier:     guardrail.TierCustom,
		Severity: guardrail.SeverityBlock,
		Scope:    guardrail.ToolScope("risky"),
		Priority: 100,
		Kind:     guardrail.KindContext,
		ContextPredicate: func(ctx guardrail.EvalContext) (bool, string) {
			return true, blockReason
		},
		UserMessage: blockReason,
	}); err != nil {
		t.Fatalf("Register rule: %v", err)
	}
	state := newTestState()

	outcome := proc.runTool(context.Background(), "sess-1", nil, state, "call-1", "risky", map[string]any{"x": 1})
	if !outcome.isError {
		t.Fatalf("expected the guardrail-blocked call to error")
	}
	if outcome.output != blockReason {
		t.Fatalf("expected block reason %q, got %q", blockReason, outcome.output)
	}
	if len(rt.calls) != 0 {
		t.Fatalf("expected the tool to never execute once blocked, got %d calls", len(rt.calls))
	}
}

func TestRunTool_ExecutesAndReturnsOutput(t *testing.T) {
	proc, _, _, _ := newTestProcessor(t)
	rt := &recordingTool{id: "safe"}
	proc.tools.Register(rt)
	state := newTestState()

	outcome := proc.runTool(context.Background(), "sess-1", nil, state, "call-1", "safe", map[string]any{"path": "."})
	if outcome.isError {
		t.Fatalf("expected success, got error output %q", outcome.output)
	}
	if outcome.output != "ok" {
		t.Fatalf("expected the recording tool's fixed output, got %q", outcome.output)
	}
	if len(rt.calls) != 1 {
		t.Fatalf("expected exactly one recorded call, got %d", len(rt.calls))
	}
}

func TestRunTool_WrapsExecutionError(t *testing.T) {
	proc, _, _, _ := newTestProcessor(t)
	rt := &recordingTool{id: "flaky", err: errors.New("boom")}
	proc.tools.Register(rt)
	state := newTestState()

	outcome := proc.runTool(context.Background(), "sess-1", nil, state, "call-1", "flaky", nil)
	if !outcome.isError {
		t.Fatalf("expected a tool execution error to surface as an error outcome")
	}
}

func TestIsDoomLoop_RepeatedIdenticalCallsTrip(t *testing.T) {
	proc := &Processor{}
	state := newTestState()
	args := map[string]any{"command": "ls"}

	for i := 0; i < doomLoopThreshold-1; i++ {
		if proc.isDoomLoop(state, "bash", args) {
			t.Fatalf("expected no doom loop before the threshold is reached (iteration %d)", i)
		}
	}
	if !proc.isDoomLoop(state, "bash", args) {
		t.Fatalf("expected the threshold-th identical call to trip the doom loop guard")
	}
}

func TestIsDoomLoop_DifferentArgsResetsCounter(t *testing.T) {
	proc := &Processor{}
	state := newTestState()

	if proc.isDoomLoop(state, "bash", map[string]any{"command": "ls"}) {
		t.Fatalf("first call should never trip the doom loop guard")
	}
	if proc.isDoomLoop(state, "bash", map[string]any{"command": "pwd"}) {
		t.Fatalf("a differently-argued call should reset the repeat counter")
	}
}
