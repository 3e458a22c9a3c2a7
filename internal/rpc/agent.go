package rpc

import (
	"context"
	"encoding/json"

	"github.com/oklog/ulid/v2"

	"github.com/tron-run/tron/internal/apperr"
	"github.com/tron-run/tron/internal/logging"
	"github.com/tron-run/tron/internal/provider"
)

// defaultAgentPreset is used when a request doesn't name one; the RPC
// surface table (spec §6.4) takes no agent-selection parameter today, so
// every agent.message turn runs the "build" built-in preset.
const defaultAgentPreset = "build"

type agentMessageParams struct {
	SessionID string `json:"sessionId"`
	Prompt    string `json:"prompt"`
}

// handleAgentMessage appends the prompt and kicks the agentic loop off on
// a worker, acknowledging immediately: the turn's progress is observed
// through the broadcast hub (TurnStart/TurnEnd/ToolExecution* events), not
// by blocking this call on the loop's completion.
func (s *Server) handleAgentMessage(ctx context.Context, raw json.RawMessage) (any, error) {
	var p agentMessageParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := requireString("sessionId", p.SessionID); err != nil {
		return nil, err
	}
	if err := requireString("prompt", p.Prompt); err != nil {
		return nil, err
	}

	sess, err := s.orchestrator.Get(ctx, p.SessionID)
	if err != nil {
		return nil, notFoundSession(err)
	}

	ag, err := s.agents.Get(defaultAgentPreset)
	if err != nil {
		return nil, apperr.Internal("resolve agent preset", err)
	}
	driverID, modelID := provider.ParseModelString(sess.LatestModel)
	driver, err := s.providers.Get(driverID)
	if err != nil {
		return nil, apperr.Provider("resolve provider for session model", err)
	}

	runID := "run_" + ulid.Make().String()
	content := []any{map[string]any{"type": "text", "text": p.Prompt}}

	go func() {
		runCtx := context.Background()
		if err := s.orchestrator.SendMessage(runCtx, p.SessionID, ag, driver, modelID, content); err != nil {
			logging.Error().Err(err).Str("sessionId", p.SessionID).Str("runId", runID).Msg("agent.message: turn failed")
		}
	}()

	return map[string]any{"acknowledged": true, "runId": runID}, nil
}

func (s *Server) handleAgentAbort(ctx context.Context, raw json.RawMessage) (any, error) {
	var p sessionIDParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := requireString("sessionId", p.SessionID); err != nil {
		return nil, err
	}
	if err := s.orchestrator.Abort(p.SessionID); err != nil {
		return map[string]any{"aborted": false}, nil
	}
	return map[string]any{"aborted": true}, nil
}

func (s *Server) handleAgentState(ctx context.Context, raw json.RawMessage) (any, error) {
	var p sessionIDParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := requireString("sessionId", p.SessionID); err != nil {
		return nil, err
	}
	running := s.orchestrator.IsProcessing(p.SessionID)
	status := "idle"
	var turn *int
	if running {
		status = "running"
		if step, ok := s.orchestrator.ActiveStep(p.SessionID); ok {
			turn = &step
		}
	}
	return map[string]any{"status": status, "isRunning": running, "currentTurn": turn}, nil
}
