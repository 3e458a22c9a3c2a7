package tool

import (
	"context"
	"encoding/json"
	"fmt"

	einotool "github.com/cloudwego/eino/components/tool"

	"github.com/tron-run/tron/internal/eventstore"
	"github.com/tron-run/tron/internal/taskstore"
)

const todowriteDescription = `Use this tool to create and manage a structured task list for your current coding session. This helps you track progress, organize complex tasks, and demonstrate thoroughness to the user.
It also helps the user understand the progress of the task and overall progress of their requests.

## When to Use This Tool
Use this tool proactively in these scenarios:

1. Complex multi-step tasks - When a task requires 3 or more distinct steps or actions
2. Non-trivial and complex tasks - Tasks that require careful planning or multiple operations
3. User explicitly requests todo list - When the user directly asks you to use the todo list
4. User provides multiple tasks - When users provide a list of things to be done (numbered or comma-separated)
5. After receiving new instructions - Immediately capture user requirements as todos
6. When you start working on a task - Mark it as in_progress BEFORE beginning work. Ideally you should only have one todo as in_progress at a time
7. After completing a task - Mark it as completed and add any new follow-up tasks discovered during implementation

## When NOT to Use This Tool

Skip using this tool when:
1. There is only a single, straightforward task
2. The task is trivial and tracking it provides no organizational benefit
3. The task can be completed in less than 3 trivial steps
4. The task is purely conversational or informational

NOTE that you should not use this tool if there is only one trivial task to do. In this case you are better off just doing the task directly.

## Task States and Management

1. **Task States**: Use these states to track progress:
   - pending: Task not yet started
   - in_progress: Currently working on (limit to ONE task at a time)
   - completed: Task finished successfully

2. **Task Management**:
   - Update task status in real-time as you work
   - Mark tasks complete IMMEDIATELY after finishing (don't batch completions)
   - Exactly ONE task must be in_progress at any time (not less, not more)
   - Complete current tasks before starting new ones
   - Remove tasks that are no longer relevant from the list entirely

3. **Task Breakdown**:
   - Create specific, actionable items
   - Break complex tasks into smaller, manageable steps
   - Use clear, descriptive task names

When in doubt, use this tool. Being proactive with task management demonstrates attentiveness and ensures you complete all requirements successfully.`

// TodoWriteTool manages a session's scratch todo list. The teacher
// overwrote a flat KV list on every call; this tool reconciles the
// submitted list against the session's todo-tagged taskstore rows
// instead, so the same scratch items also show up wherever tasks are
// queried (taskstore.ListTasks, ActiveSummary) rather than living in a
// second, parallel storage mechanism.
type TodoWriteTool struct {
	tasks  *taskstore.Store
	events *eventstore.Store
}

// TodoWriteInput represents the input for the todowrite tool.
type TodoWriteInput struct {
	Todos []TodoInfo `json:"todos"`
}

// NewTodoWriteTool creates a new todowrite tool.
func NewTodoWriteTool(tasks *taskstore.Store, events *eventstore.Store) *TodoWriteTool {
	return &TodoWriteTool{tasks: tasks, events: events}
}

func (t *TodoWriteTool) ID() string          { return "todowrite" }
func (t *TodoWriteTool) Description() string { return todowriteDescription }

func (t *TodoWriteTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"todos": {
				"type": "array",
				"description": "The updated todo list",
				"items": {
					"type": "object",
					"properties": {
						"id": {
							"type": "string",
							"description": "Unique identifier for the todo item"
						},
						"content": {
							"type": "string",
							"description": "Brief description of the task"
						},
						"status": {
							"type": "string",
							"description": "Current status of the task: pending, in_progress, completed"
						},
						"priority": {
							"type": "string",
							"description": "Priority level of the task: high, medium, low"
						}
					},
					"required": ["id", "content", "status", "priority"]
				}
			}
		},
		"required": ["todos"]
	}`)
}

func (t *TodoWriteTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params TodoWriteInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	sess, err := t.events.GetSession(ctx, toolCtx.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve session workspace: %w", err)
	}

	existing, err := listSessionTaskRows(ctx, t.tasks, t.events, toolCtx.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing todos: %w", err)
	}
	byTodoID := make(map[string]*taskstore.Task, len(existing))
	for _, row := range existing {
		if id := todoIDFromTags(row.Tags); id != "" {
			byTodoID[id] = row
		}
	}

	seen := make(map[string]bool, len(params.Todos))
	for _, todo := range params.Todos {
		seen[todo.ID] = true
		status := taskstore.TaskStatus(todo.Status)
		priority := normalizeTodoPriority(todo.Priority)

		if row, ok := byTodoID[todo.ID]; ok {
			if _, err := t.tasks.UpdateTask(ctx, row.ID, map[string]any{
				"title":    todo.Content,
				"status":   string(status),
				"priority": string(priority),
			}, nil, nil, ""); err != nil {
				return nil, fmt.Errorf("failed to update todo %s: %w", todo.ID, err)
			}
			continue
		}

		if _, err := t.tasks.CreateTask(ctx, &taskstore.Task{
			WorkspaceID: sess.WorkspaceID,
			Title:       todo.Content,
			Status:      status,
			Priority:    priority,
			Source:      taskstore.SourceAgent,
			Tags:        []string{sessionTodoTag(toolCtx.SessionID), "todoid:" + todo.ID},
		}); err != nil {
			return nil, fmt.Errorf("failed to create todo %s: %w", todo.ID, err)
		}
	}

	for id, row := range byTodoID {
		if !seen[id] {
			if err := t.tasks.DeleteTask(ctx, row.ID); err != nil {
				return nil, fmt.Errorf("failed to remove todo %s: %w", id, err)
			}
		}
	}

	nonCompleted := 0
	for _, todo := range params.Todos {
		if todo.Status != "completed" {
			nonCompleted++
		}
	}

	output, _ := json.MarshalIndent(params.Todos, "", "  ")
	return &Result{
		Title:  fmt.Sprintf("%d todos", nonCompleted),
		Output: string(output),
		Metadata: map[string]any{
			"todos": params.Todos,
		},
	}, nil
}

func normalizeTodoPriority(p string) taskstore.TaskPriority {
	switch taskstore.TaskPriority(p) {
	case taskstore.PriorityHigh, taskstore.PriorityMedium, taskstore.PriorityLow, taskstore.PriorityCritical:
		return taskstore.TaskPriority(p)
	default:
		return taskstore.PriorityMedium
	}
}

func (t *TodoWriteTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}
