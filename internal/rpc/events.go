package rpc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tron-run/tron/internal/eventstore"
)

// maxEventPageSize is the server-enforced page cap for events.list and
// events.sync (spec SUPPLEMENTED FEATURES, grounded on
// original_source/tron-server/rpc/handlers/adapters.rs).
const maxEventPageSize = 200

type eventsListParams struct {
	SessionID     string `json:"sessionId"`
	AfterSequence int    `json:"afterSequence,omitempty"`
	Limit         int    `json:"limit,omitempty"`
}

type wireEvent struct {
	ID         string          `json:"id"`
	SessionID  string          `json:"sessionId"`
	Type       string          `json:"type"`
	Sequence   int             `json:"sequence"`
	Timestamp  time.Time       `json:"timestamp"`
	Turn       *int            `json:"turn,omitempty"`
	Role       *string         `json:"role,omitempty"`
	ToolName   *string         `json:"toolName,omitempty"`
	ToolCallID *string         `json:"toolCallId,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}

func toWireEvents(events []*eventstore.Event) []wireEvent {
	out := make([]wireEvent, len(events))
	for i, ev := range events {
		out[i] = wireEvent{
			ID:         ev.ID,
			SessionID:  ev.SessionID,
			Type:       string(ev.Type),
			Sequence:   ev.Sequence,
			Timestamp:  ev.Timestamp,
			Turn:       ev.Turn,
			Role:       ev.Role,
			ToolName:   ev.ToolName,
			ToolCallID: ev.ToolCallID,
			Payload:    json.RawMessage(ev.Payload),
		}
	}
	return out
}

// fetchEventsPage is shared by events.list, events.sync's initial poll,
// and the SSE backlog replay: GetEventsSince capped at maxEventPageSize+1
// so the extra row (if present) signals hasMore without a second query.
func (s *Server) fetchEventsPage(ctx context.Context, sessionID string, afterSeq, limit int) ([]wireEvent, bool, error) {
	if limit <= 0 || limit > maxEventPageSize {
		limit = maxEventPageSize
	}
	events, err := s.events.GetEventsSince(ctx, sessionID, afterSeq, limit+1)
	if err != nil {
		return nil, false, err
	}
	hasMore := len(events) > limit
	if hasMore {
		events = events[:limit]
	}
	return toWireEvents(events), hasMore, nil
}

func (s *Server) handleEventsList(ctx context.Context, raw json.RawMessage) (any, error) {
	var p eventsListParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if err := requireString("sessionId", p.SessionID); err != nil {
		return nil, err
	}
	if _, err := s.orchestrator.Get(ctx, p.SessionID); err != nil {
		return nil, notFoundSession(err)
	}

	events, hasMore, err := s.fetchEventsPage(ctx, p.SessionID, p.AfterSequence, p.Limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"events": events, "hasMore": hasMore}, nil
}

// handleEventsSync answers the same shape as events.list for a one-shot
// poll; the live-tail form is the SSE route bound in sse.go, which shares
// fetchEventsPage for its backlog replay before switching to the hub.
func (s *Server) handleEventsSync(ctx context.Context, raw json.RawMessage) (any, error) {
	return s.handleEventsList(ctx, raw)
}

// marshalWireEvent marshals a single backlog event for SSE framing.
func marshalWireEvent(ev wireEvent) ([]byte, error) {
	return json.Marshal(ev)
}
