package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/tron-run/tron/internal/agent"
	"github.com/tron-run/tron/internal/broadcast"
	"github.com/tron-run/tron/internal/eventstore"
	"github.com/tron-run/tron/internal/guardrail"
	"github.com/tron-run/tron/internal/provider"
	"github.com/tron-run/tron/internal/taskstore"
	"github.com/tron-run/tron/internal/tool"
)

// Processor drives the agentic loop (spec §4.F): reconstructing history
// from the event store, calling a provider.Driver, executing requested
// tools behind the guardrail engine, and persisting every step back to
// the event store as it goes.
type Processor struct {
	mu sync.Mutex

	events     *eventstore.Store
	tasks      *taskstore.Store
	tools      *tool.Registry
	providers  *provider.Registry
	guardrails *guardrail.Engine
	hub        *broadcast.Hub
	workDir    string

	sessions map[string]*sessionState
}

// sessionState tracks one session's in-flight agentic loop.
type sessionState struct {
	ctx    context.Context
	cancel context.CancelFunc
	step   int

	waiters []chan error

	lastToolFingerprint string
	repeatCount         int
}

// NewProcessor builds a Processor wired against the durable stores and
// the broadcast hub.
func NewProcessor(events *eventstore.Store, tasks *taskstore.Store, tools *tool.Registry, providers *provider.Registry, guardrails *guardrail.Engine, hub *broadcast.Hub, workDir string) *Processor {
	return &Processor{
		events:     events,
		tasks:      tasks,
		tools:      tools,
		providers:  providers,
		guardrails: guardrails,
		hub:        hub,
		workDir:    workDir,
		sessions:   make(map[string]*sessionState),
	}
}

// Process runs the agentic loop for sessionID against driver/model using
// ag's tool and sampling policy. A call that arrives while sessionID
// already has a loop in flight queues behind it (spec §5: one active
// loop per session) rather than running concurrently.
func (p *Processor) Process(ctx context.Context, sessionID string, ag *agent.Agent, driver provider.Driver, model string) error {
	p.mu.Lock()
	if state, ok := p.sessions[sessionID]; ok {
		waiter := make(chan error, 1)
		state.waiters = append(state.waiters, waiter)
		p.mu.Unlock()

		select {
		case <-waiter:
			return p.Process(ctx, sessionID, ag, driver, model)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	state := &sessionState{ctx: loopCtx, cancel: cancel}
	p.sessions[sessionID] = state
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.sessions, sessionID)
		waiters := state.waiters
		p.mu.Unlock()
		for _, w := range waiters {
			w <- nil
		}
	}()

	return p.runLoop(loopCtx, sessionID, state, ag, driver, model)
}

// Abort cancels sessionID's in-flight loop, if any.
func (p *Processor) Abort(sessionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	state, ok := p.sessions[sessionID]
	if !ok {
		return fmt.Errorf("orchestrator: session %s is not processing", sessionID)
	}
	state.cancel()
	return nil
}

// IsProcessing reports whether sessionID has an in-flight loop.
func (p *Processor) IsProcessing(sessionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.sessions[sessionID]
	return ok
}

// ActiveStep returns the current loop step for sessionID and whether it
// is processing at all.
func (p *Processor) ActiveStep(sessionID string) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	state, ok := p.sessions[sessionID]
	if !ok {
		return 0, false
	}
	return state.step, true
}
