package rpc

import (
	"context"
	"encoding/json"

	"github.com/tron-run/tron/internal/apperr"
	"github.com/tron-run/tron/internal/provider"
)

// handleHealth answers a liveness probe; it never errors, since a server
// able to run a Handler at all is by definition serving.
func (s *Server) handleHealth(ctx context.Context, raw json.RawMessage) (any, error) {
	return map[string]any{
		"status":  "ok",
		"methods": len(s.registry.Methods()),
	}, nil
}

// handleModelList returns every model exposed by every registered
// provider.Driver, for UIs populating a model picker.
func (s *Server) handleModelList(ctx context.Context, raw json.RawMessage) (any, error) {
	var rows []map[string]any
	for _, d := range s.providers.List() {
		for _, m := range d.Models() {
			rows = append(rows, map[string]any{
				"id":                d.ID() + "/" + m.ID,
				"driver":            d.ID(),
				"name":              m.Name,
				"contextWindow":     m.ContextWindow,
				"maxOutputTokens":   m.MaxOutputTokens,
				"supportsTools":     m.SupportsTools,
				"supportsReasoning": m.SupportsReasoning,
			})
		}
	}
	return map[string]any{"models": rows}, nil
}

type modelSwitchParams struct {
	SessionID string `json:"sessionId"`
	Model     string `json:"model"`
}

// handleModelSwitch validates model against the registry before
// persisting it onto the session, so a typo'd model never silently
// becomes the session's driver for the next turn.
func (s *Server) handleModelSwitch(ctx context.Context, raw json.RawMessage) (any, error) {
	var p modelSwitchParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := requireString("sessionId", p.SessionID); err != nil {
		return nil, err
	}
	if err := requireString("model", p.Model); err != nil {
		return nil, err
	}
	driverID, modelID := provider.ParseModelString(p.Model)
	if _, err := s.providers.GetModel(driverID, modelID); err != nil {
		return nil, apperr.InvalidInput("unknown model " + p.Model)
	}
	if _, err := s.orchestrator.Get(ctx, p.SessionID); err != nil {
		return nil, notFoundSession(err)
	}
	if err := s.events.UpdateLatestModel(ctx, p.SessionID, p.Model); err != nil {
		return nil, err
	}
	return map[string]any{"sessionId": p.SessionID, "model": p.Model}, nil
}

// handleSkillList reports the agent presets available to agent.message —
// "skills" in spec §6.4's surface table map onto the same agent.Registry
// presets agent.message selects from, there being no separate skill store.
func (s *Server) handleSkillList(ctx context.Context, raw json.RawMessage) (any, error) {
	names := s.agents.Names()
	rows := make([]map[string]any, 0, len(names))
	for _, name := range names {
		ag, err := s.agents.Get(name)
		if err != nil {
			continue
		}
		rows = append(rows, map[string]any{
			"name":        ag.Name,
			"description": ag.Description,
			"mode":        ag.Mode,
			"builtIn":     ag.BuiltIn,
		})
	}
	return map[string]any{"skills": rows}, nil
}
