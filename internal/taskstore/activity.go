package taskstore

import (
	"context"
	"database/sql"

	"github.com/tron-run/tron/internal/storage"
)

func (s *Store) logActivity(ctx context.Context, taskID string, action ActivityAction, oldValue, newValue, detail *string, minutesLogged *int) error {
	a := Activity{
		ID:            newActivityID(),
		TaskID:        taskID,
		Action:        action,
		OldValue:      oldValue,
		NewValue:      newValue,
		Detail:        detail,
		MinutesLogged: minutesLogged,
		Timestamp:     s.pool.Now(),
	}
	_, err := s.pool.DB().ExecContext(ctx,
		`INSERT INTO task_activity (id, task_id, session_id, event_id, action, old_value, new_value, detail, minutes_logged, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.TaskID, a.SessionID, a.EventID, string(a.Action), a.OldValue, a.NewValue, a.Detail, a.MinutesLogged,
		a.Timestamp.Format(storage.TimeLayout))
	return err
}

// ListActivity returns a task's activity log, oldest first.
func (s *Store) ListActivity(ctx context.Context, taskID string) ([]*Activity, error) {
	rows, err := s.pool.DB().QueryContext(ctx,
		`SELECT id, task_id, session_id, event_id, action, old_value, new_value, detail, minutes_logged, timestamp
		 FROM task_activity WHERE task_id = ? ORDER BY timestamp`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Activity
	for rows.Next() {
		var a Activity
		var sessionID, eventID, oldValue, newValue, detail sql.NullString
		var minutesLogged sql.NullInt64
		var timestamp string
		if err := rows.Scan(&a.ID, &a.TaskID, &sessionID, &eventID, &a.Action, &oldValue, &newValue, &detail, &minutesLogged, &timestamp); err != nil {
			return nil, err
		}
		a.SessionID = scanNullString(sessionID)
		a.EventID = scanNullString(eventID)
		a.OldValue = scanNullString(oldValue)
		a.NewValue = scanNullString(newValue)
		a.Detail = scanNullString(detail)
		if minutesLogged.Valid {
			v := int(minutesLogged.Int64)
			a.MinutesLogged = &v
		}
		a.Timestamp = storage.ParseTime(timestamp)
		out = append(out, &a)
	}
	return out, rows.Err()
}
