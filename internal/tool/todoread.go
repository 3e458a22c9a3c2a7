package tool

import (
	"context"
	"encoding/json"
	"fmt"

	einotool "github.com/cloudwego/eino/components/tool"

	"github.com/tron-run/tron/internal/eventstore"
	"github.com/tron-run/tron/internal/taskstore"
)

const todoreadDescription = `Use this tool to read your todo list`

// TodoInfo is the LLM-facing shape of one scratch todo item, projected
// from a taskstore.Task tagged for the owning session.
type TodoInfo struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	Status   string `json:"status"`
	Priority string `json:"priority"`
}

// TodoReadTool reads the current todo list for a session. Unlike the
// teacher, which kept a flat per-session list in KV storage, todos here
// are taskstore.Task rows tagged sessionTodoTag(sessionID) — the same
// store that backs persistent work items, scoped down to session
// scratch state by tag rather than by a second storage mechanism.
type TodoReadTool struct {
	tasks  *taskstore.Store
	events *eventstore.Store
}

// NewTodoReadTool creates a new todoread tool.
func NewTodoReadTool(tasks *taskstore.Store, events *eventstore.Store) *TodoReadTool {
	return &TodoReadTool{tasks: tasks, events: events}
}

func (t *TodoReadTool) ID() string          { return "todoread" }
func (t *TodoReadTool) Description() string { return todoreadDescription }

func (t *TodoReadTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {},
		"required": []
	}`)
}

func (t *TodoReadTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	todos, err := listSessionTodos(ctx, t.tasks, t.events, toolCtx.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get todos: %w", err)
	}

	nonCompleted := 0
	for _, todo := range todos {
		if todo.Status != "completed" {
			nonCompleted++
		}
	}

	output, _ := json.MarshalIndent(todos, "", "  ")
	return &Result{
		Title:  fmt.Sprintf("%d todos", nonCompleted),
		Output: string(output),
		Metadata: map[string]any{
			"todos": todos,
		},
	}, nil
}

func (t *TodoReadTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}

// sessionTodoTag is the single tag that scopes a workspace's tasks down
// to one session's scratch todo list (taskstore.ListTasks matches tags
// by OR, so a tag unique per session is sufficient to isolate it).
func sessionTodoTag(sessionID string) string { return "todo-session:" + sessionID }

// listSessionTaskRows resolves the session's workspace and returns the
// raw taskstore rows tagged for its scratch todo list.
func listSessionTaskRows(ctx context.Context, tasks *taskstore.Store, events *eventstore.Store, sessionID string) ([]*taskstore.Task, error) {
	sess, err := events.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return tasks.ListTasks(ctx, taskstore.ListTasksFilter{
		WorkspaceID:      sess.WorkspaceID,
		Tags:             []string{sessionTodoTag(sessionID)},
		IncludeCompleted: true,
		IncludeDeferred:  true,
		IncludeBacklog:   true,
		Limit:            200,
	})
}

// listSessionTodos projects the session's todo-tagged tasks to the
// LLM-facing TodoInfo shape.
func listSessionTodos(ctx context.Context, tasks *taskstore.Store, events *eventstore.Store, sessionID string) ([]TodoInfo, error) {
	rows, err := listSessionTaskRows(ctx, tasks, events, sessionID)
	if err != nil {
		return nil, err
	}

	todos := make([]TodoInfo, 0, len(rows))
	for _, r := range rows {
		todos = append(todos, TodoInfo{
			ID:       todoIDFromTags(r.Tags),
			Content:  r.Title,
			Status:   string(r.Status),
			Priority: string(r.Priority),
		})
	}
	return todos, nil
}

// todoIDFromTags extracts the agent-chosen todo id stashed as a
// "todoid:<id>" tag on task creation.
func todoIDFromTags(tags []string) string {
	const prefix = "todoid:"
	for _, t := range tags {
		if len(t) > len(prefix) && t[:len(prefix)] == prefix {
			return t[len(prefix):]
		}
	}
	return ""
}
