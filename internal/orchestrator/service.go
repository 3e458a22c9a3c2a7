// Package orchestrator drives session lifecycle and the agentic loop
// on top of the durable event store (spec §4.F).
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tron-run/tron/internal/agent"
	"github.com/tron-run/tron/internal/broadcast"
	"github.com/tron-run/tron/internal/eventstore"
	"github.com/tron-run/tron/internal/guardrail"
	"github.com/tron-run/tron/internal/provider"
	"github.com/tron-run/tron/internal/reconstruct"
	"github.com/tron-run/tron/internal/taskstore"
	"github.com/tron-run/tron/internal/tool"
	"github.com/tron-run/tron/internal/wire"
)

// Service is the session-lifecycle entry point: creation, forking,
// archival, deletion, history reconstruction, and message dispatch.
// Agentic execution itself is delegated to an embedded Processor.
type Service struct {
	events     *eventstore.Store
	tasks      *taskstore.Store
	tools      *tool.Registry
	providers  *provider.Registry
	guardrails *guardrail.Engine
	hub        *broadcast.Hub

	proc *Processor
}

// NewService wires a Service and its Processor against the same
// durable stores, tool registry, provider registry, guardrail engine,
// and broadcast hub.
func NewService(events *eventstore.Store, tasks *taskstore.Store, tools *tool.Registry, providers *provider.Registry, guardrails *guardrail.Engine, hub *broadcast.Hub, workDir string) *Service {
	return &Service{
		events: events, tasks: tasks, tools: tools, providers: providers,
		guardrails: guardrails, hub: hub,
		proc: NewProcessor(events, tasks, tools, providers, guardrails, hub, workDir),
	}
}

// Create starts a new session and its session.start event, then kicks
// off optimistic context discovery in the background (spec's
// "discovers project rules and memory before the first message
// arrives" requirement).
func (s *Service) Create(ctx context.Context, workspacePath, workspaceName, model string, title *string) (*eventstore.Session, error) {
	sess, err := s.events.CreateSession(ctx, eventstore.CreateSessionParams{
		Model: model, WorkspacePath: workspacePath, WorkspaceName: workspaceName, Title: title,
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.hub.Publish(wire.SessionCreated{Base: base(sess.ID), Model: model, WorkingDirectory: workspacePath})
	go s.discoverContext(context.Background(), sess.ID, workspacePath)

	return sess, nil
}

// Get returns a session by id.
func (s *Service) Get(ctx context.Context, sessionID string) (*eventstore.Session, error) {
	return s.events.GetSession(ctx, sessionID)
}

// List returns sessions matching f, newest activity first.
func (s *Service) List(ctx context.Context, f eventstore.ListSessionsFilter) ([]*eventstore.Session, error) {
	return s.events.ListSessions(ctx, f)
}

// Subagents lists the sessions spawned as subagents of parentID.
func (s *Service) Subagents(ctx context.Context, parentID string) ([]*eventstore.Session, error) {
	return s.events.ListSubagents(ctx, parentID)
}

// Fork creates a new session rooted at a session.fork event pointing at
// fromEventID, inheriting the source session's workspace.
func (s *Service) Fork(ctx context.Context, fromEventID string, model, title *string) (*eventstore.Session, error) {
	child, err := s.events.Fork(ctx, eventstore.ForkParams{FromEventID: fromEventID, Model: model, Title: title})
	if err != nil {
		return nil, fmt.Errorf("fork session: %w", err)
	}
	if child.ParentSessionID != nil {
		s.hub.Publish(wire.SessionForked{Base: base(*child.ParentSessionID), NewSessionID: child.ID})
	}
	return child, nil
}

// Archive marks a session archived and broadcasts the change.
func (s *Service) Archive(ctx context.Context, sessionID string) error {
	if err := s.events.SetArchived(ctx, sessionID, true); err != nil {
		return err
	}
	s.hub.Publish(wire.SessionArchived{Base: base(sessionID)})
	return nil
}

// Unarchive clears a session's archived flag and broadcasts the change.
func (s *Service) Unarchive(ctx context.Context, sessionID string) error {
	if err := s.events.SetArchived(ctx, sessionID, false); err != nil {
		return err
	}
	s.hub.Publish(wire.SessionUnarchived{Base: base(sessionID)})
	return nil
}

// Delete removes a session and broadcasts its deletion.
func (s *Service) Delete(ctx context.Context, sessionID string) error {
	if err := s.events.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	s.hub.Publish(wire.SessionDeleted{Base: base(sessionID)})
	return nil
}

// GetHistory reconstructs sessionID's canonical message history as of
// headEventID, or its current head when headEventID is nil.
func (s *Service) GetHistory(ctx context.Context, sessionID string, headEventID *string) (reconstruct.Result, error) {
	head := headEventID
	if head == nil {
		sess, err := s.events.GetSession(ctx, sessionID)
		if err != nil {
			return reconstruct.Result{}, err
		}
		head = sess.HeadEventID
	}
	if head == nil {
		return reconstruct.Result{}, nil
	}
	ancestors, err := s.events.GetAncestors(ctx, *head)
	if err != nil {
		return reconstruct.Result{}, err
	}
	return reconstructHistory(ancestors)
}

// SendMessage appends a user message.user event and hands the session
// off to the Processor's agentic loop.
func (s *Service) SendMessage(ctx context.Context, sessionID string, ag *agent.Agent, driver provider.Driver, model string, content []any) error {
	payload, err := json.Marshal(map[string]any{"content": content})
	if err != nil {
		return fmt.Errorf("marshal message payload: %w", err)
	}
	if _, err := s.events.Append(ctx, eventstore.AppendParams{SessionID: sessionID, Type: eventstore.EventMessageUser, Payload: payload}); err != nil {
		return fmt.Errorf("persist user message: %w", err)
	}
	s.hub.Publish(wire.MessageUpdate{Base: base(sessionID), Content: content})

	return s.proc.Process(ctx, sessionID, ag, driver, model)
}

// DeleteMessage soft-deletes targetEventID, excluding it from future
// reconstructions, and broadcasts the change.
func (s *Service) DeleteMessage(ctx context.Context, sessionID, targetEventID string, reason *string) error {
	ev, err := s.events.DeleteMessage(ctx, sessionID, targetEventID, reason)
	if err != nil {
		return err
	}
	s.hub.Publish(wire.MessageDeleted{
		Base: base(sessionID), TargetEventID: targetEventID,
		TargetType: string(ev.Type), TargetTurn: turnOf(ev), Reason: reason,
	})
	return nil
}

func turnOf(ev *eventstore.Event) *int {
	return ev.Turn
}

// Abort cancels sessionID's in-flight agentic loop, if any.
func (s *Service) Abort(sessionID string) error { return s.proc.Abort(sessionID) }

// IsProcessing reports whether sessionID has an in-flight agentic loop.
func (s *Service) IsProcessing(sessionID string) bool { return s.proc.IsProcessing(sessionID) }

// ActiveStep returns sessionID's current loop step, if processing.
func (s *Service) ActiveStep(sessionID string) (int, bool) { return s.proc.ActiveStep(sessionID) }

// discoverContext runs once per session.create, scanning the workspace
// for rule files ahead of the first message so their discovery cost
// doesn't sit on a turn's critical path (spec's optimistic-context
// requirement). It appends a rules.loaded event and broadcasts
// wire.RulesLoaded whenever it finds anything.
func (s *Service) discoverContext(ctx context.Context, sessionID, workDir string) {
	_, n := loadCustomRules(workDir)
	if n == 0 {
		return
	}
	payload, _ := json.Marshal(map[string]any{"totalFiles": n, "dynamicRulesCount": 0})
	if _, err := s.events.Append(ctx, eventstore.AppendParams{SessionID: sessionID, Type: eventstore.EventRulesLoaded, Payload: payload}); err != nil {
		return
	}
	s.hub.Publish(wire.RulesLoaded{Base: base(sessionID), TotalFiles: n})
}

// base builds the Base envelope every wire.TronEvent carries.
func base(sessionID string) wire.Base {
	return wire.Base{SessionID: sessionID, Timestamp: time.Now()}
}

// flattenEvents dereferences eventstore.GetAncestors' []*Event into the
// []Event shape reconstruct.Reconstruct expects.
func flattenEvents(ptrs []*eventstore.Event) []eventstore.Event {
	out := make([]eventstore.Event, len(ptrs))
	for i, p := range ptrs {
		out[i] = *p
	}
	return out
}

// reconstructHistory is the flattenEvents+Reconstruct pair used
// throughout the package wherever an ancestor chain needs rebuilding.
func reconstructHistory(ancestors []*eventstore.Event) (reconstruct.Result, error) {
	return reconstruct.Reconstruct(flattenEvents(ancestors))
}

// messagesOnly strips event-ID bookkeeping, leaving the plain message
// sequence a provider.Driver call needs.
func messagesOnly(mw []reconstruct.MessageWithEventIDs) []reconstruct.Message {
	out := make([]reconstruct.Message, len(mw))
	for i, m := range mw {
		out[i] = m.Message
	}
	return out
}
