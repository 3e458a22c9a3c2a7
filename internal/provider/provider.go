package provider

import (
	"context"
	"encoding/json"

	"github.com/cloudwego/eino/schema"

	"github.com/tron-run/tron/internal/reconstruct"
)

// ModelInfo describes one model a Driver serves.
type ModelInfo struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	ContextWindow     int    `json:"contextWindow"`
	MaxOutputTokens   int    `json:"maxOutputTokens"`
	SupportsTools     bool   `json:"supportsTools"`
	SupportsReasoning bool   `json:"supportsReasoning"`
}

// Driver is what a model backend must implement to sit behind the
// orchestrator's agentic loop. A real implementation wraps a vendor
// SDK's Eino ChatModel; this package ships only the contract, per the
// module's scope (no HTTP calls implemented here — see doc.go).
type Driver interface {
	// ID returns the driver identifier ("anthropic", "openai", ...).
	ID() string

	// Name returns the human-readable driver name.
	Name() string

	// Models returns the list of models this driver serves.
	Models() []ModelInfo

	// CreateCompletion starts a streaming completion.
	CreateCompletion(ctx context.Context, req *CompletionRequest) (*CompletionStream, error)
}

// ToolInfo is a tool definition in the shape a Driver's request needs.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// CompletionRequest is a request to generate a streaming completion.
type CompletionRequest struct {
	Model       string              `json:"model"`
	Messages    []*schema.Message   `json:"messages"`
	Tools       []*schema.ToolInfo  `json:"tools,omitempty"`
	MaxTokens   int                 `json:"maxTokens,omitempty"`
	Temperature float64             `json:"temperature,omitempty"`
	TopP        float64             `json:"topP,omitempty"`
	StopWords   []string            `json:"stopWords,omitempty"`
}

// CompletionStream wraps an Eino stream reader.
type CompletionStream struct {
	reader *schema.StreamReader[*schema.Message]
}

// NewCompletionStream wraps a raw Eino stream reader for a Driver to return.
func NewCompletionStream(reader *schema.StreamReader[*schema.Message]) *CompletionStream {
	return &CompletionStream{reader: reader}
}

// Recv receives the next message chunk from the stream.
func (s *CompletionStream) Recv() (*schema.Message, error) {
	return s.reader.Recv()
}

// Close closes the stream.
func (s *CompletionStream) Close() {
	s.reader.Close()
}

// ConvertToEinoTools converts tool definitions to Eino's tool-calling format.
func ConvertToEinoTools(tools []ToolInfo) []*schema.ToolInfo {
	result := make([]*schema.ToolInfo, len(tools))
	for i, t := range tools {
		var params map[string]*schema.ParameterInfo
		if len(t.Parameters) > 0 {
			params = parseJSONSchemaToParams(t.Parameters)
		}
		result[i] = &schema.ToolInfo{
			Name:        t.Name,
			Desc:        t.Description,
			ParamsOneOf: schema.NewParamsOneOfByParams(params),
		}
	}
	return result
}

// parseJSONSchemaToParams converts a flat JSON Schema object into Eino's
// ParameterInfo map. Nested schemas aren't needed by any tool this
// module ships, so only the top-level properties/required pair is read.
func parseJSONSchemaToParams(schemaJSON json.RawMessage) map[string]*schema.ParameterInfo {
	var jsonSchema struct {
		Properties map[string]struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(schemaJSON, &jsonSchema); err != nil {
		return nil
	}

	requiredSet := make(map[string]bool, len(jsonSchema.Required))
	for _, r := range jsonSchema.Required {
		requiredSet[r] = true
	}

	params := make(map[string]*schema.ParameterInfo, len(jsonSchema.Properties))
	for name, prop := range jsonSchema.Properties {
		paramType := schema.String
		switch prop.Type {
		case "integer":
			paramType = schema.Integer
		case "number":
			paramType = schema.Number
		case "boolean":
			paramType = schema.Boolean
		case "array":
			paramType = schema.Array
		case "object":
			paramType = schema.Object
		}
		params[name] = &schema.ParameterInfo{
			Type:     paramType,
			Desc:     prop.Description,
			Required: requiredSet[name],
		}
	}
	return params
}

// ConvertToEinoMessages turns a reconstructed history into the Eino
// message slice a Driver's CompletionRequest carries. It is the
// counterpart of the teacher's ConvertToEinoMessages, re-targeted at
// reconstruct.Message (content blocks decoded from events) instead of
// the teacher's flat Message/Part pair.
func ConvertToEinoMessages(messages []reconstruct.Message) []*schema.Message {
	result := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "user":
			result = append(result, &schema.Message{
				Role:    schema.User,
				Content: blocksToText(m.Content),
			})
		case "assistant":
			text, calls := splitAssistantContent(m.Content)
			result = append(result, &schema.Message{
				Role:      schema.Assistant,
				Content:   text,
				ToolCalls: calls,
			})
		case "toolResult":
			id := ""
			if m.ToolCallID != nil {
				id = *m.ToolCallID
			}
			text, _ := m.Content.(string)
			result = append(result, &schema.Message{
				Role:       schema.Tool,
				Content:    text,
				ToolCallID: id,
			})
		}
	}
	return result
}

// blocksToText flattens a user message's content blocks to plain text.
// Non-text blocks (e.g. attachments) are skipped; the tools that accept
// them read the original event payload directly rather than going
// through the Driver.
func blocksToText(content any) string {
	if s, ok := content.(string); ok {
		return s
	}
	arr, ok := content.([]any)
	if !ok {
		return ""
	}
	text := ""
	for _, b := range arr {
		block, ok := b.(map[string]any)
		if !ok || block["type"] != "text" {
			continue
		}
		if t, ok := block["text"].(string); ok {
			text += t
		}
	}
	return text
}

// splitAssistantContent separates an assistant message's content blocks
// into plain text and tool_use blocks converted to Eino ToolCalls.
func splitAssistantContent(content any) (string, []schema.ToolCall) {
	arr, ok := content.([]any)
	if !ok {
		if s, ok := content.(string); ok {
			return s, nil
		}
		return "", nil
	}
	text := ""
	var calls []schema.ToolCall
	for _, b := range arr {
		block, ok := b.(map[string]any)
		if !ok {
			continue
		}
		switch block["type"] {
		case "text":
			if t, ok := block["text"].(string); ok {
				text += t
			}
		case "tool_use":
			id, _ := block["id"].(string)
			name, _ := block["name"].(string)
			args, _ := json.Marshal(block["input"])
			calls = append(calls, schema.ToolCall{
				ID: id,
				Function: schema.FunctionCall{
					Name:      name,
					Arguments: string(args),
				},
			})
		}
	}
	return text, calls
}
