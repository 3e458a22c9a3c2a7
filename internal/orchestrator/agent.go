package orchestrator

import "github.com/tron-run/tron/internal/agent"

// defaultMaxSteps bounds the agentic loop when an agent carries no
// explicit "maxSteps" option, mirroring the teacher's per-preset
// MaxSteps field, now read from agent.Agent.Options instead of a
// dedicated struct field since agent.Agent is shared with the guardrail
// and RPC layers.
const defaultMaxSteps = 50

// maxSteps resolves the step ceiling for ag, falling back to
// defaultMaxSteps when unset or of the wrong type.
func maxSteps(ag *agent.Agent) int {
	if ag == nil || ag.Options == nil {
		return defaultMaxSteps
	}
	switch v := ag.Options["maxSteps"].(type) {
	case int:
		if v > 0 {
			return v
		}
	case float64:
		if v > 0 {
			return int(v)
		}
	}
	return defaultMaxSteps
}

// samplingParams resolves temperature/topP for ag, defaulting to the
// driver's own defaults (0, 0 — "unset") when the agent preset doesn't
// override them.
func samplingParams(ag *agent.Agent) (temperature, topP float64) {
	if ag == nil {
		return 0, 0
	}
	return ag.Temperature, ag.TopP
}
