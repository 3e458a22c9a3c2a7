package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/tron-run/tron/internal/agent"
	"github.com/tron-run/tron/internal/broadcast"
	"github.com/tron-run/tron/internal/eventstore"
	"github.com/tron-run/tron/internal/guardrail"
	"github.com/tron-run/tron/internal/provider"
	"github.com/tron-run/tron/internal/storage"
	"github.com/tron-run/tron/internal/taskstore"
	"github.com/tron-run/tron/internal/tool"
)

// newTestServer mirrors internal/orchestrator's own test fixture: a
// fresh sqlite-backed pool, an empty guardrail engine, a standalone hub,
// and one fake driver registered as the registry's default model.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()
	opts := storage.DefaultOptions(filepath.Join(t.TempDir(), "test.db"))
	pool, err := storage.Open(ctx, opts)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	events := eventstore.New(pool)
	tasks := taskstore.New(pool)
	workDir := t.TempDir()
	tools := tool.DefaultRegistry(workDir, tasks, events)
	providers := provider.NewRegistry("fake/fake-1")
	providers.Register(&fakeDriver{id: "fake", models: []provider.ModelInfo{{ID: "fake-1", Name: "fake-1", ContextWindow: 100000}}})
	guardrails := guardrail.NewEngine()
	agents := agent.NewRegistry()
	hub := broadcast.NewHub()
	t.Cleanup(func() { hub.Close() })

	return New(DefaultConfig(), events, tasks, guardrails, providers, agents, tools, hub, workDir)
}

// fakeDriver never actually completes a turn in these tests: its
// CreateCompletion returns an error, which is all agent.message's
// background turn reaches. It exists so session.create/model.list/
// model.switch have a real driver/model to resolve against without
// wiring a live LLM, per the "driver contract only, no HTTP calls"
// non-goal.
type fakeDriver struct {
	id     string
	models []provider.ModelInfo
}

func (f *fakeDriver) ID() string                   { return f.id }
func (f *fakeDriver) Name() string                 { return f.id }
func (f *fakeDriver) Models() []provider.ModelInfo { return f.models }
func (f *fakeDriver) CreateCompletion(ctx context.Context, req *provider.CompletionRequest) (*provider.CompletionStream, error) {
	return nil, errors.New("fakeDriver does not complete turns")
}

func createTestSession(t *testing.T, s *Server) map[string]any {
	t.Helper()
	raw, _ := json.Marshal(map[string]any{"workingDirectory": t.TempDir()})
	result, err := s.Registry().Dispatch(context.Background(), "session.create", raw)
	if err != nil {
		t.Fatalf("session.create: %v", err)
	}
	row, ok := result.(map[string]any)
	if !ok {
		t.Fatalf("session.create: expected map[string]any result, got %T", result)
	}
	return row
}
