package taskstore

import (
	"context"
	"database/sql"

	"github.com/tron-run/tron/internal/apperr"
	"github.com/tron-run/tron/internal/storage"
)

// AddDependency inserts a directed edge. For `blocks`, a BFS from the
// would-be-blocked task following existing `blocks` edges must not
// reach the blocker, or the edge would close a cycle (§4.E "Add
// dependency"). `related` edges carry no such check. Insertion is
// idempotent by the schema's UNIQUE(blocker, blocked) constraint.
func (s *Store) AddDependency(ctx context.Context, blockerID, blockedID string, relationship DependencyRelationship) error {
	if relationship == RelationBlocks {
		cyclic, err := s.reachableViaBlocks(ctx, blockedID, blockerID)
		if err != nil {
			return err
		}
		if cyclic {
			return apperr.Invariant("adding blocks edge " + blockerID + " -> " + blockedID + " would create a circular dependency")
		}
	}

	now := s.pool.Now()
	err := s.pool.Tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO task_dependencies (blocker_task_id, blocked_task_id, relationship, created_at)
			 VALUES (?, ?, ?, ?)`,
			blockerID, blockedID, string(relationship), now.Format(storage.TimeLayout))
		return err
	})
	if err != nil {
		return err
	}

	detail := string(relationship)
	if err := s.logActivity(ctx, blockerID, ActivityDependencyAdded, nil, nil, &detail, nil); err != nil {
		return err
	}
	return s.logActivity(ctx, blockedID, ActivityDependencyAdded, nil, nil, &detail, nil)
}

// reachableViaBlocks reports whether target is reachable from start by
// following `blocks` edges outward (start blocks X, X blocks Y, ...).
func (s *Store) reachableViaBlocks(ctx context.Context, start, target string) (bool, error) {
	visited := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current == target {
			return true, nil
		}
		next, err := s.blockedBy(ctx, current)
		if err != nil {
			return false, err
		}
		for _, n := range next {
			if !visited[n] {
				visited[n] = true
				queue = append(queue, n)
			}
		}
	}
	return false, nil
}

// blockedBy returns the task ids that blockerID blocks.
func (s *Store) blockedBy(ctx context.Context, blockerID string) ([]string, error) {
	rows, err := s.pool.DB().QueryContext(ctx,
		"SELECT blocked_task_id FROM task_dependencies WHERE blocker_task_id = ? AND relationship = 'blocks'", blockerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) RemoveDependency(ctx context.Context, blockerID, blockedID string) error {
	_, err := s.pool.DB().ExecContext(ctx,
		"DELETE FROM task_dependencies WHERE blocker_task_id = ? AND blocked_task_id = ?", blockerID, blockedID)
	return err
}

func (s *Store) ListDependencies(ctx context.Context, taskID string) ([]*TaskDependency, error) {
	rows, err := s.pool.DB().QueryContext(ctx,
		`SELECT blocker_task_id, blocked_task_id, relationship, created_at FROM task_dependencies
		 WHERE blocker_task_id = ? OR blocked_task_id = ?`, taskID, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deps []*TaskDependency
	for rows.Next() {
		var d TaskDependency
		var createdAt string
		if err := rows.Scan(&d.BlockerTaskID, &d.BlockedTaskID, &d.Relationship, &createdAt); err != nil {
			return nil, err
		}
		d.CreatedAt = storage.ParseTime(createdAt)
		deps = append(deps, &d)
	}
	return deps, rows.Err()
}
