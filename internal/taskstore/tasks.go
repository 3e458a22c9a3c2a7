package taskstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tron-run/tron/internal/apperr"
	"github.com/tron-run/tron/internal/storage"
)

const taskColumns = `id, workspace_id, project_id, area_id, parent_task_id, title, description, status, priority, source, tags,
	due_date, deferred_until, started_at, completed_at, estimated_minutes, actual_minutes, notes, metadata, created_at, updated_at`

func scanTask(sc interface{ Scan(...any) error }) (*Task, error) {
	var t Task
	var projectID, areaID, parentID, desc sql.NullString
	var dueDate, deferredUntil, startedAt, completedAt sql.NullString
	var estimatedMinutes sql.NullInt64
	var notes sql.NullString
	var tags, metadata, createdAt, updatedAt string
	if err := sc.Scan(
		&t.ID, &t.WorkspaceID, &projectID, &areaID, &parentID, &t.Title, &desc, &t.Status, &t.Priority, &t.Source, &tags,
		&dueDate, &deferredUntil, &startedAt, &completedAt, &estimatedMinutes, &t.ActualMinutes, &notes, &metadata,
		&createdAt, &updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	t.ProjectID = scanNullString(projectID)
	t.AreaID = scanNullString(areaID)
	t.ParentTaskID = scanNullString(parentID)
	if desc.Valid {
		t.Description = desc.String
	}
	if notes.Valid {
		t.Notes = notes.String
	}
	t.Tags = unmarshalTags(tags)
	t.Metadata = unmarshalMetadata(metadata)
	t.DueDate = scanNullTime(dueDate)
	t.DeferredUntil = scanNullTime(deferredUntil)
	t.StartedAt = scanNullTime(startedAt)
	t.CompletedAt = scanNullTime(completedAt)
	if estimatedMinutes.Valid {
		v := int(estimatedMinutes.Int64)
		t.EstimatedMinutes = &v
	}
	t.CreatedAt = storage.ParseTime(createdAt)
	t.UpdatedAt = storage.ParseTime(updatedAt)
	return &t, nil
}

// CreateTask enforces the 2-level hierarchy invariant (§3.3): a task
// whose parent already has a parent is rejected.
func (s *Store) CreateTask(ctx context.Context, t *Task) (*Task, error) {
	if strings.TrimSpace(t.Title) == "" {
		return nil, apperr.InvalidInput("task title must be non-empty")
	}
	if t.Status == "" {
		t.Status = TaskPending
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.Source == "" {
		t.Source = SourceUser
	}
	t.ProjectID = normalizeEmpty(t.ProjectID)
	t.AreaID = normalizeEmpty(t.AreaID)
	t.ParentTaskID = normalizeEmpty(t.ParentTaskID)

	if t.ParentTaskID != nil {
		parent, err := s.GetTask(ctx, *t.ParentTaskID)
		if err != nil {
			return nil, err
		}
		if parent.ParentTaskID != nil {
			return nil, apperr.Invariant("task hierarchy is limited to 2 levels: parent " + parent.ID + " already has a parent")
		}
	}

	now := s.pool.Now()
	t.ID = newTaskID()
	t.CreatedAt, t.UpdatedAt = now, now
	if t.Status == TaskInProgress {
		t.StartedAt = &now
	}

	err := s.pool.Tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO tasks (id, workspace_id, project_id, area_id, parent_task_id, title, description, status, priority, source, tags,
			 due_date, deferred_until, started_at, completed_at, estimated_minutes, actual_minutes, notes, metadata, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.WorkspaceID, t.ProjectID, t.AreaID, t.ParentTaskID, t.Title, t.Description, string(t.Status), string(t.Priority), string(t.Source),
			marshalTags(t.Tags), nullTimeString(t.DueDate), nullTimeString(t.DeferredUntil), nullTimeString(t.StartedAt),
			nullTimeString(t.CompletedAt), t.EstimatedMinutes, t.ActualMinutes, t.Notes, marshalMetadata(t.Metadata),
			t.CreatedAt.Format(storage.TimeLayout), t.UpdatedAt.Format(storage.TimeLayout))
		if err != nil {
			return err
		}
		return indexTaskText(ctx, tx, t)
	})
	if err != nil {
		return nil, err
	}
	if err := s.logActivity(ctx, t.ID, ActivityCreated, nil, nil, nil, nil); err != nil {
		return nil, err
	}
	return t, nil
}

func normalizeEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	return emptyToNil(*s)
}

func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	row := s.pool.DB().QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
	return scanTask(row)
}

// UpdateTask supports partial field updates plus the set-semantic
// add_tags/remove_tags and add_note pseudo-fields, and auto-manages
// started_at/completed_at on status transitions (§4.E "Update task").
func (s *Store) UpdateTask(ctx context.Context, id string, updates map[string]any, addTags, removeTags []string, addNote string) (*Task, error) {
	existing, err := s.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.pool.Now()
	dbUpdates := map[string]any{}
	for k, v := range updates {
		dbUpdates[k] = v
	}
	dbUpdates["updated_at"] = now.Format(storage.TimeLayout)

	var oldStatus, newStatus *string
	if rawStatus, ok := updates["status"]; ok {
		statusStr, _ := rawStatus.(string)
		ns := TaskStatus(statusStr)
		old := string(existing.Status)
		oldStatus, newStatus = &old, &statusStr
		if ns == TaskInProgress && existing.StartedAt == nil {
			dbUpdates["started_at"] = now.Format(storage.TimeLayout)
		}
		if ns.terminal() {
			dbUpdates["completed_at"] = now.Format(storage.TimeLayout)
		} else if existing.Status.terminal() {
			dbUpdates["completed_at"] = nil
		}
	}

	if len(addTags) > 0 || len(removeTags) > 0 {
		dbUpdates["tags"] = marshalTags(mergeTags(existing.Tags, addTags, removeTags))
	}

	if addNote != "" {
		dbUpdates["notes"] = appendNote(existing.Notes, now, addNote)
	}

	err = s.pool.Tx(ctx, func(tx *sql.Tx) error {
		if err := execUpdate(ctx, tx, "tasks", dbUpdates, id); err != nil {
			return err
		}
		return reindexTaskText(ctx, tx, id)
	})
	if err != nil {
		return nil, err
	}

	if oldStatus != nil {
		if err := s.logActivity(ctx, id, ActivityStatusChanged, oldStatus, newStatus, nil, nil); err != nil {
			return nil, err
		}
	} else if addNote != "" {
		if err := s.logActivity(ctx, id, ActivityNoteAdded, nil, nil, ptr(addNote), nil); err != nil {
			return nil, err
		}
	} else {
		if err := s.logActivity(ctx, id, ActivityUpdated, nil, nil, nil, nil); err != nil {
			return nil, err
		}
	}
	return s.GetTask(ctx, id)
}

func ptr(s string) *string { return &s }

func mergeTags(existing, add, remove []string) []string {
	set := make(map[string]bool, len(existing))
	for _, t := range existing {
		set[t] = true
	}
	for _, t := range add {
		set[t] = true
	}
	for _, t := range remove {
		delete(set, t)
	}
	out := make([]string, 0, len(set))
	for _, t := range existing {
		if set[t] {
			out = append(out, t)
			delete(set, t)
		}
	}
	for _, t := range add {
		if set[t] {
			out = append(out, t)
			delete(set, t)
		}
	}
	return out
}

func appendNote(existing string, at time.Time, note string) string {
	prefix := fmt.Sprintf("[%s] ", at.Format("2006-01-02"))
	entry := prefix + note
	if existing == "" {
		return entry
	}
	return existing + "\n" + entry
}

// DeleteTask logs an activity entry then deletes the row.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	if err := s.logActivity(ctx, id, ActivityDeleted, nil, nil, nil, nil); err != nil {
		return err
	}
	res, err := s.pool.DB().ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("task not found: " + id)
	}
	return nil
}

// LogTime increments actual_minutes atomically and records a
// time_logged activity.
func (s *Store) LogTime(ctx context.Context, id string, minutes int) (*Task, error) {
	err := s.pool.Tx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE tasks SET actual_minutes = actual_minutes + ?, updated_at = ? WHERE id = ?",
			minutes, s.pool.Now().Format(storage.TimeLayout), id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return apperr.NotFound("task not found: " + id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.logActivity(ctx, id, ActivityTimeLogged, nil, nil, nil, &minutes); err != nil {
		return nil, err
	}
	return s.GetTask(ctx, id)
}

// ListTasks applies the default-exclusion filter set of §4.E and orders
// by priority (critical→low) then updated_at desc.
func (s *Store) ListTasks(ctx context.Context, f ListTasksFilter) ([]*Task, error) {
	query := "SELECT " + taskColumns + " FROM tasks WHERE workspace_id = ?"
	args := []any{f.WorkspaceID}

	if f.AreaID != nil {
		query += " AND area_id = ?"
		args = append(args, *f.AreaID)
	}
	if f.ProjectID != nil {
		query += " AND project_id = ?"
		args = append(args, *f.ProjectID)
	}
	if f.ParentTaskID != nil {
		query += " AND parent_task_id = ?"
		args = append(args, *f.ParentTaskID)
	}
	if len(f.Status) > 0 {
		ph := make([]string, len(f.Status))
		for i, st := range f.Status {
			ph[i] = "?"
			args = append(args, string(st))
		}
		query += " AND status IN (" + strings.Join(ph, ", ") + ")"
	} else if !f.IncludeCompleted {
		query += " AND status NOT IN ('completed', 'cancelled')"
	}
	if len(f.Priority) > 0 {
		ph := make([]string, len(f.Priority))
		for i, p := range f.Priority {
			ph[i] = "?"
			args = append(args, string(p))
		}
		query += " AND priority IN (" + strings.Join(ph, ", ") + ")"
	}
	if !f.IncludeDeferred {
		query += " AND (deferred_until IS NULL OR deferred_until <= ?)"
		args = append(args, s.pool.Now().Format(storage.TimeLayout))
	}
	if !f.IncludeBacklog {
		query += " AND status != 'backlog'"
	}
	if f.DueBefore != nil {
		query += " AND due_date IS NOT NULL AND due_date < ?"
		args = append(args, f.DueBefore.Format(storage.TimeLayout))
	}

	query += ` ORDER BY CASE priority
		WHEN 'critical' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 WHEN 'low' THEN 3 ELSE 4 END,
		updated_at DESC`

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, f.Offset)

	rows, err := s.pool.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		if len(f.Tags) > 0 && !hasAnyTag(t.Tags, f.Tags) {
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func hasAnyTag(tags, want []string) bool {
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		set[t] = true
	}
	for _, w := range want {
		if set[w] {
			return true
		}
	}
	return false
}

// ActiveSummary returns in-progress tasks plus the pending/overdue/deferred
// counts §4.E names, optionally scoped to one workspace.
func (s *Store) ActiveSummary(ctx context.Context, workspaceID string) (*ActiveSummary, error) {
	inProgress, err := s.ListTasks(ctx, ListTasksFilter{
		WorkspaceID: workspaceID,
		Status:      []TaskStatus{TaskInProgress},
		Limit:       1000,
	})
	if err != nil {
		return nil, err
	}

	now := s.pool.Now().Format(storage.TimeLayout)
	summary := &ActiveSummary{InProgress: derefTasks(inProgress)}

	row := s.pool.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM tasks WHERE workspace_id = ? AND status = 'pending'", workspaceID)
	if err := row.Scan(&summary.Pending); err != nil {
		return nil, err
	}

	row = s.pool.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM tasks WHERE workspace_id = ? AND due_date IS NOT NULL AND due_date < ? AND status NOT IN ('completed','cancelled')",
		workspaceID, now)
	if err := row.Scan(&summary.Overdue); err != nil {
		return nil, err
	}

	row = s.pool.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM tasks WHERE workspace_id = ? AND deferred_until IS NOT NULL AND deferred_until > ?",
		workspaceID, now)
	if err := row.Scan(&summary.Deferred); err != nil {
		return nil, err
	}

	return summary, nil
}

func derefTasks(tasks []*Task) []Task {
	out := make([]Task, len(tasks))
	for i, t := range tasks {
		out[i] = *t
	}
	return out
}
