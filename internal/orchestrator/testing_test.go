package orchestrator

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/tron-run/tron/internal/broadcast"
	"github.com/tron-run/tron/internal/eventstore"
	"github.com/tron-run/tron/internal/guardrail"
	"github.com/tron-run/tron/internal/provider"
	"github.com/tron-run/tron/internal/storage"
	"github.com/tron-run/tron/internal/taskstore"
	tronTool "github.com/tron-run/tron/internal/tool"
)

// newTestStores mirrors internal/tool's own test helper: a sqlite-backed
// pool on a file in a temp dir plus the two stores the orchestrator is
// built on.
func newTestStores(t *testing.T) (*eventstore.Store, *taskstore.Store) {
	t.Helper()
	ctx := context.Background()
	opts := storage.DefaultOptions(filepath.Join(t.TempDir(), "test.db"))
	pool, err := storage.Open(ctx, opts)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	return eventstore.New(pool), taskstore.New(pool)
}

// newTestProcessor builds a Processor against fresh stores, an empty
// (everything-allowed) guardrail engine, and a standalone hub, the way
// unit tests exercise the loop without a full Service.
func newTestProcessor(t *testing.T) (*Processor, *eventstore.Store, *taskstore.Store, string) {
	t.Helper()
	events, tasks := newTestStores(t)
	workDir := t.TempDir()
	tools := tronTool.DefaultRegistry(workDir, tasks, events)
	providers := provider.NewRegistry("fake/fake-1")
	guardrails := guardrail.NewEngine()
	hub := broadcast.NewHub()
	t.Cleanup(func() { hub.Close() })
	return NewProcessor(events, tasks, tools, providers, guardrails, hub, workDir), events, tasks, workDir
}

func newTestSession(t *testing.T, events *eventstore.Store, workDir string) *eventstore.Session {
	t.Helper()
	ctx := context.Background()
	sess, err := events.CreateSession(ctx, eventstore.CreateSessionParams{
		Model: "fake/fake-1", WorkspacePath: workDir, WorkspaceName: "test-project",
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return sess
}

func appendUserMessage(t *testing.T, events *eventstore.Store, sessionID, text string) {
	t.Helper()
	payload, _ := json.Marshal(map[string]any{
		"content": []any{map[string]any{"type": "text", "text": text}},
	})
	if _, err := events.Append(context.Background(), eventstore.AppendParams{
		SessionID: sessionID, Type: eventstore.EventMessageUser, Payload: payload,
	}); err != nil {
		t.Fatalf("Append user message: %v", err)
	}
}

func textMessage(text string) *schema.Message {
	return &schema.Message{
		Role:         schema.Assistant,
		Content:      text,
		ResponseMeta: &schema.ResponseMeta{FinishReason: "stop"},
	}
}

// fakeDriver serves a fixed sequence of responses, one per
// CreateCompletion call, holding on the last entry once exhausted.
type fakeDriver struct {
	mu        sync.Mutex
	id        string
	models    []provider.ModelInfo
	responses []*schema.Message
	calls     int
}

func (f *fakeDriver) ID() string                   { return f.id }
func (f *fakeDriver) Name() string                 { return f.id }
func (f *fakeDriver) Models() []provider.ModelInfo { return f.models }

func (f *fakeDriver) CreateCompletion(ctx context.Context, req *provider.CompletionRequest) (*provider.CompletionStream, error) {
	f.mu.Lock()
	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	f.calls++
	f.mu.Unlock()

	sr := schema.StreamReaderFromArray([]*schema.Message{f.responses[idx]})
	return provider.NewCompletionStream(sr), nil
}

// countingDriver calls onCall synchronously on entry and after on exit,
// sleeping on the timer onCall returns in between — used to measure how
// many Process loops are inside the driver at once.
type countingDriver struct {
	id     string
	models []provider.ModelInfo
	onCall func() *time.Timer
	after  func()
}

func (d *countingDriver) ID() string                   { return d.id }
func (d *countingDriver) Name() string                 { return d.id }
func (d *countingDriver) Models() []provider.ModelInfo { return d.models }

func (d *countingDriver) CreateCompletion(ctx context.Context, req *provider.CompletionRequest) (*provider.CompletionStream, error) {
	timer := d.onCall()
	<-timer.C
	d.after()
	sr := schema.StreamReaderFromArray([]*schema.Message{textMessage("done")})
	return provider.NewCompletionStream(sr), nil
}

// blockingDriver hangs in CreateCompletion until ctx is cancelled,
// signalling started once the call is in flight. Used to exercise
// Abort/IsProcessing against a loop held open mid-turn.
type blockingDriver struct {
	id      string
	models  []provider.ModelInfo
	started chan struct{}
}

func (d *blockingDriver) ID() string                   { return d.id }
func (d *blockingDriver) Name() string                 { return d.id }
func (d *blockingDriver) Models() []provider.ModelInfo { return d.models }

func (d *blockingDriver) CreateCompletion(ctx context.Context, req *provider.CompletionRequest) (*provider.CompletionStream, error) {
	close(d.started)
	<-ctx.Done()
	return nil, ctx.Err()
}

// recordingTool captures every invocation it receives and returns a
// fixed result, standing in for a real tool.Tool in guardrail/doom-loop
// tests.
type recordingTool struct {
	mu    sync.Mutex
	id    string
	calls []map[string]any
	err   error
}

func (r *recordingTool) ID() string                  { return r.id }
func (r *recordingTool) Description() string         { return "records calls for tests" }
func (r *recordingTool) Parameters() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (r *recordingTool) EinoTool() tool.InvokableTool { return nil }

func (r *recordingTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *tronTool.Context) (*tronTool.Result, error) {
	var args map[string]any
	_ = json.Unmarshal(input, &args)

	r.mu.Lock()
	r.calls = append(r.calls, args)
	n := len(r.calls)
	r.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}
	return &tronTool.Result{Output: "ok", Metadata: map[string]any{"call": n}}, nil
}
