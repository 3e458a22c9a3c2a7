package orchestrator

import (
	"context"

	"github.com/tron-run/tron/internal/taskstore"
)

// TodoSummary returns the active-work summary for the workspace backing
// sessionID, used to inject a brief status line into the system prompt
// (system.go). Actual todo CRUD lives in the tool.TodoWrite/TodoRead
// tools, which write straight through to taskstore and eventstore; this
// is a read-only view for prompt assembly, not a duplicate of that path.
func (p *Processor) TodoSummary(ctx context.Context, sessionID string) (*taskstore.ActiveSummary, error) {
	sess, err := p.events.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return p.tasks.ActiveSummary(ctx, sess.WorkspaceID)
}
