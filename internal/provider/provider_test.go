package provider

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tron-run/tron/internal/reconstruct"
)

// fakeDriver is a minimal in-memory Driver used by this package's tests
// in place of a real vendor SDK client.
type fakeDriver struct {
	id       string
	models   []ModelInfo
	response *schema.Message
}

func (f *fakeDriver) ID() string          { return f.id }
func (f *fakeDriver) Name() string        { return f.id }
func (f *fakeDriver) Models() []ModelInfo { return f.models }

func (f *fakeDriver) CreateCompletion(ctx context.Context, req *CompletionRequest) (*CompletionStream, error) {
	sr := schema.StreamReaderFromArray([]*schema.Message{f.response})
	return NewCompletionStream(sr), nil
}

func TestRegistryResolvesDefaultModel(t *testing.T) {
	d := &fakeDriver{id: "fake", models: []ModelInfo{{ID: "fake-1", ContextWindow: 100000}}}
	reg := NewRegistry("fake/fake-1")
	reg.Register(d)

	driverID, modelID, info, err := reg.DefaultModel()
	require.NoError(t, err)
	assert.Equal(t, "fake", driverID)
	assert.Equal(t, "fake-1", modelID)
	assert.Equal(t, 100000, info.ContextWindow)
}

func TestRegistryFallsBackWhenDefaultMissing(t *testing.T) {
	d := &fakeDriver{id: "fake", models: []ModelInfo{{ID: "fake-1"}}}
	reg := NewRegistry("ghost/ghost-1")
	reg.Register(d)

	driverID, modelID, _, err := reg.DefaultModel()
	require.NoError(t, err)
	assert.Equal(t, "fake", driverID)
	assert.Equal(t, "fake-1", modelID)
}

func TestConvertToEinoMessagesRoundTrip(t *testing.T) {
	toolCallID := "call_1"
	history := []reconstruct.Message{
		{Role: "user", Content: []any{map[string]any{"type": "text", "text": "list files"}}},
		{Role: "assistant", Content: []any{
			map[string]any{"type": "text", "text": "sure"},
			map[string]any{"type": "tool_use", "id": toolCallID, "name": "list", "input": map[string]any{"path": "."}},
		}},
		{Role: "toolResult", Content: "a.go\nb.go", ToolCallID: &toolCallID},
	}

	msgs := ConvertToEinoMessages(history)
	require.Len(t, msgs, 3)

	assert.Equal(t, schema.User, msgs[0].Role)
	assert.Equal(t, "list files", msgs[0].Content)

	assert.Equal(t, schema.Assistant, msgs[1].Role)
	assert.Equal(t, "sure", msgs[1].Content)
	require.Len(t, msgs[1].ToolCalls, 1)
	assert.Equal(t, "list", msgs[1].ToolCalls[0].Function.Name)

	assert.Equal(t, schema.Tool, msgs[2].Role)
	assert.Equal(t, toolCallID, msgs[2].ToolCallID)
	assert.Equal(t, "a.go\nb.go", msgs[2].Content)
}

func TestConvertToEinoToolsParsesSchema(t *testing.T) {
	tools := []ToolInfo{{
		Name:        "bash",
		Description: "run a shell command",
		Parameters:  []byte(`{"properties":{"command":{"type":"string"}},"required":["command"]}`),
	}}

	einoTools := ConvertToEinoTools(tools)
	require.Len(t, einoTools, 1)
	assert.Equal(t, "bash", einoTools[0].Name)
}
