package rpc

import (
	"context"
	"encoding/json"
	"testing"
)

func TestHealth_ReportsOKAndMethodCount(t *testing.T) {
	s := newTestServer(t)
	result, err := s.Registry().Dispatch(context.Background(), "health", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	row := result.(map[string]any)
	if row["status"] != "ok" {
		t.Fatalf("expected status=ok, got %v", row["status"])
	}
	if row["methods"].(int) == 0 {
		t.Fatal("expected a non-zero registered method count")
	}
}

func TestModelList_IncludesRegisteredFakeDriver(t *testing.T) {
	s := newTestServer(t)
	result, err := s.Registry().Dispatch(context.Background(), "model.list", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("model.list: %v", err)
	}
	rows := result.(map[string]any)["models"].([]map[string]any)
	found := false
	for _, row := range rows {
		if row["id"] == "fake/fake-1" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected fake/fake-1 in model.list")
	}
}

func TestModelSwitch_RejectsUnknownModel(t *testing.T) {
	s := newTestServer(t)
	created := createTestSession(t, s)
	raw, _ := json.Marshal(map[string]any{"sessionId": created["sessionId"], "model": "nope/nope"})
	_, err := s.Registry().Dispatch(context.Background(), "model.switch", raw)
	if err == nil {
		t.Fatal("expected error for unknown model")
	}
}

func TestModelSwitch_PersistsValidModel(t *testing.T) {
	s := newTestServer(t)
	created := createTestSession(t, s)
	raw, _ := json.Marshal(map[string]any{"sessionId": created["sessionId"], "model": "fake/fake-1"})
	result, err := s.Registry().Dispatch(context.Background(), "model.switch", raw)
	if err != nil {
		t.Fatalf("model.switch: %v", err)
	}
	if result.(map[string]any)["model"] != "fake/fake-1" {
		t.Fatalf("unexpected model in result: %v", result)
	}

	resumeRaw, _ := json.Marshal(map[string]any{"sessionId": created["sessionId"]})
	resumed, err := s.Registry().Dispatch(context.Background(), "session.resume", resumeRaw)
	if err != nil {
		t.Fatalf("session.resume: %v", err)
	}
	if resumed.(map[string]any)["model"] != "fake/fake-1" {
		t.Fatalf("expected persisted model, got %v", resumed.(map[string]any)["model"])
	}
}

func TestSkillList_IncludesBuiltInBuildAgent(t *testing.T) {
	s := newTestServer(t)
	result, err := s.Registry().Dispatch(context.Background(), "skill.list", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("skill.list: %v", err)
	}
	rows := result.(map[string]any)["skills"].([]map[string]any)
	found := false
	for _, row := range rows {
		if row["name"] == "build" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected build agent in skill.list")
	}
}
