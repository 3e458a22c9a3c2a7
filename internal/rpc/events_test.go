package rpc

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/tron-run/tron/internal/eventstore"
)

func appendTestEvent(t *testing.T, s *Server, sessionID string) *eventstore.Event {
	t.Helper()
	ev, err := s.events.Append(context.Background(), eventstore.AppendParams{
		SessionID: sessionID,
		Type:      eventstore.EventMessageUser,
		Payload:   []byte(`{"role":"user","content":"hi"}`),
	})
	if err != nil {
		t.Fatalf("events.Append: %v", err)
	}
	return ev
}

func TestEventsList_RequiresSessionID(t *testing.T) {
	s := newTestServer(t)
	_, err := s.Registry().Dispatch(context.Background(), "events.list", json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected error for missing sessionId")
	}
}

func TestEventsList_UnknownSessionReturnsNotFound(t *testing.T) {
	s := newTestServer(t)
	raw, _ := json.Marshal(map[string]any{"sessionId": "missing"})
	_, err := s.Registry().Dispatch(context.Background(), "events.list", raw)
	if err == nil {
		t.Fatal("expected error for unknown session")
	}
}

func TestEventsList_ReturnsAppendedEvent(t *testing.T) {
	s := newTestServer(t)
	created := createTestSession(t, s)
	sessionID := created["sessionId"].(string)
	appendTestEvent(t, s, sessionID)

	raw, _ := json.Marshal(map[string]any{"sessionId": sessionID})
	result, err := s.Registry().Dispatch(context.Background(), "events.list", raw)
	if err != nil {
		t.Fatalf("events.list: %v", err)
	}
	row := result.(map[string]any)
	events := row["events"].([]wireEvent)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].SessionID != sessionID {
		t.Fatalf("expected sessionId %q, got %q", sessionID, events[0].SessionID)
	}
	if row["hasMore"] != false {
		t.Fatal("expected hasMore=false")
	}
}

func TestEventsList_HasMoreWhenPageCapExceeded(t *testing.T) {
	s := newTestServer(t)
	created := createTestSession(t, s)
	sessionID := created["sessionId"].(string)
	for i := 0; i < 3; i++ {
		appendTestEvent(t, s, sessionID)
	}

	raw, _ := json.Marshal(map[string]any{"sessionId": sessionID, "limit": 2})
	result, err := s.Registry().Dispatch(context.Background(), "events.list", raw)
	if err != nil {
		t.Fatalf("events.list: %v", err)
	}
	row := result.(map[string]any)
	events := row["events"].([]wireEvent)
	if len(events) != 2 {
		t.Fatalf("expected 2 events (limit), got %d", len(events))
	}
	if row["hasMore"] != true {
		t.Fatal("expected hasMore=true")
	}
}

func TestEventsSync_MirrorsEventsList(t *testing.T) {
	s := newTestServer(t)
	created := createTestSession(t, s)
	sessionID := created["sessionId"].(string)
	appendTestEvent(t, s, sessionID)

	raw, _ := json.Marshal(map[string]any{"sessionId": sessionID})
	result, err := s.Registry().Dispatch(context.Background(), "events.sync", raw)
	if err != nil {
		t.Fatalf("events.sync: %v", err)
	}
	events := result.(map[string]any)["events"].([]wireEvent)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
}

func TestFetchEventsPage_AfterSequenceExcludesOlderEvents(t *testing.T) {
	s := newTestServer(t)
	created := createTestSession(t, s)
	sessionID := created["sessionId"].(string)
	first := appendTestEvent(t, s, sessionID)
	appendTestEvent(t, s, sessionID)

	page, hasMore, err := s.fetchEventsPage(context.Background(), sessionID, first.Sequence, 10)
	if err != nil {
		t.Fatalf("fetchEventsPage: %v", err)
	}
	if hasMore {
		t.Fatal("expected hasMore=false")
	}
	if len(page) != 1 {
		t.Fatalf("expected 1 event after first.Sequence, got %d", len(page))
	}
}

func TestMarshalWireEvent_ProducesValidJSON(t *testing.T) {
	data, err := marshalWireEvent(wireEvent{ID: "evt_1", SessionID: "sess_1", Type: "message.user"})
	if err != nil {
		t.Fatalf("marshalWireEvent: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["id"] != "evt_1" {
		t.Fatalf("expected id=evt_1, got %v", out["id"])
	}
}
