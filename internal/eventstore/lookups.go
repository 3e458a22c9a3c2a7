package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tron-run/tron/internal/apperr"
	"github.com/tron-run/tron/internal/storage"
)

const eventColumns = `id, session_id, parent_id, sequence, depth, type, timestamp, workspace_id,
	payload, content_blob_id, role, tool_name, tool_call_id, turn, input_tokens, output_tokens,
	cache_read_tokens, cache_creation_tokens, checksum, model, latency_ms, stop_reason,
	has_thinking, provider_type, cost`

func scanEvent(sc interface{ Scan(...any) error }) (*Event, error) {
	var e Event
	var ts string
	var hasThinking sql.NullBool
	if err := sc.Scan(
		&e.ID, &e.SessionID, &e.ParentID, &e.Sequence, &e.Depth, &e.Type, &ts, &e.WorkspaceID,
		&e.Payload, &e.ContentBlobID, &e.Role, &e.ToolName, &e.ToolCallID, &e.Turn,
		&e.InputTokens, &e.OutputTokens, &e.CacheReadTokens, &e.CacheCreationTokens,
		&e.Checksum, &e.Model, &e.LatencyMS, &e.StopReason, &hasThinking, &e.ProviderType, &e.Cost,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	e.Timestamp = storage.ParseTime(ts)
	if hasThinking.Valid {
		e.HasThinking = &hasThinking.Bool
	}
	return &e, nil
}

// GetEvent fetches a single event by id.
func (s *Store) GetEvent(ctx context.Context, id string) (*Event, error) {
	row := s.pool.DB().QueryRowContext(ctx, "SELECT "+eventColumns+" FROM events WHERE id = ?", id)
	ev, err := scanEvent(row)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound(fmt.Sprintf("event %s not found", id))
	}
	return ev, err
}

// GetEventsByIDs batch-fetches events, skipping any id not found.
func (s *Store) GetEventsByIDs(ctx context.Context, ids []string) ([]*Event, error) {
	out := make([]*Event, 0, len(ids))
	for _, id := range ids {
		ev, err := s.GetEvent(ctx, id)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindNotFound {
				continue
			}
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// GetEventsBySession returns a session's events ordered by sequence,
// paged by limit/offset (0 limit means unbounded).
func (s *Store) GetEventsBySession(ctx context.Context, sessionID string, limit, offset int) ([]*Event, error) {
	query := "SELECT " + eventColumns + " FROM events WHERE session_id = ? ORDER BY sequence ASC"
	args := []any{sessionID}
	if limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	}
	return queryEvents(ctx, s.pool.DB(), query, args...)
}

// GetEventsSince returns events with sequence > afterSeq, ascending.
func (s *Store) GetEventsSince(ctx context.Context, sessionID string, afterSeq, limit int) ([]*Event, error) {
	query := "SELECT " + eventColumns + " FROM events WHERE session_id = ? AND sequence > ? ORDER BY sequence ASC"
	args := []any{sessionID, afterSeq}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return queryEvents(ctx, s.pool.DB(), query, args...)
}

// GetEventsByType returns events of a given type across all sessions.
func (s *Store) GetEventsByType(ctx context.Context, t EventType, limit int) ([]*Event, error) {
	query := "SELECT " + eventColumns + " FROM events WHERE type = ? ORDER BY timestamp ASC"
	args := []any{string(t)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return queryEvents(ctx, s.pool.DB(), query, args...)
}

// GetEventsByWorkspaceAndTypes returns events for a workspace restricted
// to the given types.
func (s *Store) GetEventsByWorkspaceAndTypes(ctx context.Context, workspaceID string, types []EventType, limit int) ([]*Event, error) {
	if len(types) == 0 {
		return nil, nil
	}
	placeholders := ""
	args := []any{workspaceID}
	for i, t := range types {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args = append(args, string(t))
	}
	query := fmt.Sprintf("SELECT %s FROM events WHERE workspace_id = ? AND type IN (%s) ORDER BY timestamp ASC", eventColumns, placeholders)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return queryEvents(ctx, s.pool.DB(), query, args...)
}

func queryEvents(ctx context.Context, db *sql.DB, query string, args ...any) ([]*Event, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// GetChildren returns events whose parent_id equals id, ordered by sequence.
func (s *Store) GetChildren(ctx context.Context, id string) ([]*Event, error) {
	return queryEvents(ctx, s.pool.DB(), "SELECT "+eventColumns+" FROM events WHERE parent_id = ? ORDER BY sequence ASC", id)
}

// CountEventsBySession returns the total event count for a session.
func (s *Store) CountEventsBySession(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.pool.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM events WHERE session_id = ?", sessionID).Scan(&n)
	return n, err
}

// TokenUsageAggregate sums token usage across a session's events.
type TokenUsageAggregate struct {
	InputTokens         int64
	OutputTokens        int64
	CacheReadTokens     int64
	CacheCreationTokens int64
}

// GetTokenUsage aggregates token usage for a session directly from the
// sessions row's running totals (already derived on append), avoiding a
// full event scan.
func (s *Store) GetTokenUsage(ctx context.Context, sessionID string) (*TokenUsageAggregate, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &TokenUsageAggregate{
		InputTokens: sess.TotalInputTokens, OutputTokens: sess.TotalOutputTokens,
		CacheReadTokens: sess.TotalCacheReadTokens, CacheCreationTokens: sess.TotalCacheCreationTokens,
	}, nil
}

const sessionColumns = `id, workspace_id, latest_model, working_directory, title, head_event_id,
	root_event_id, event_count, message_count, turn_count, total_input_tokens, total_output_tokens,
	total_cache_read_tokens, total_cache_creation_tokens, last_turn_input_tokens, cost,
	parent_session_id, fork_from_event_id, spawning_session_id, spawn_type, spawn_task, origin,
	archived, created_at, last_activity_at, ended_at`

func scanSession(sc interface{ Scan(...any) error }) (*Session, error) {
	var sess Session
	var createdAt, lastActivity string
	var endedAt sql.NullString
	var archived int
	if err := sc.Scan(
		&sess.ID, &sess.WorkspaceID, &sess.LatestModel, &sess.WorkingDirectory, &sess.Title,
		&sess.HeadEventID, &sess.RootEventID, &sess.EventCount, &sess.MessageCount, &sess.TurnCount,
		&sess.TotalInputTokens, &sess.TotalOutputTokens, &sess.TotalCacheReadTokens,
		&sess.TotalCacheCreationTokens, &sess.LastTurnInputTokens, &sess.Cost,
		&sess.ParentSessionID, &sess.ForkFromEventID, &sess.SpawningSessionID, &sess.SpawnType,
		&sess.SpawnTask, &sess.Origin, &archived, &createdAt, &lastActivity, &endedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	sess.Archived = archived != 0
	sess.CreatedAt = storage.ParseTime(createdAt)
	sess.LastActivityAt = storage.ParseTime(lastActivity)
	if endedAt.Valid {
		t := storage.ParseTime(endedAt.String)
		sess.EndedAt = &t
	}
	return &sess, nil
}

// GetSession fetches a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.pool.DB().QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
	sess, err := scanSession(row)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound(fmt.Sprintf("session %s not found", id))
	}
	return sess, err
}

// ListSessionsFilter filters the session list.
type ListSessionsFilter struct {
	WorkspaceID       string
	IncludeArchived   bool
	IncludeSubagents  bool
	Limit, Offset     int
}

// ListSessions lists sessions matching the filter, newest activity first.
func (s *Store) ListSessions(ctx context.Context, f ListSessionsFilter) ([]*Session, error) {
	query := "SELECT " + sessionColumns + " FROM sessions WHERE 1=1"
	var args []any
	if f.WorkspaceID != "" {
		query += " AND workspace_id = ?"
		args = append(args, f.WorkspaceID)
	}
	if !f.IncludeArchived {
		query += " AND archived = 0"
	}
	if !f.IncludeSubagents {
		query += " AND spawning_session_id IS NULL"
	}
	query += " ORDER BY last_activity_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}
	rows, err := s.pool.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// ListSubagents returns sessions spawned by parentID.
func (s *Store) ListSubagents(ctx context.Context, parentID string) ([]*Session, error) {
	rows, err := s.pool.DB().QueryContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE spawning_session_id = ? ORDER BY created_at ASC", parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// SetArchived toggles a session's archived flag under the session lock.
func (s *Store) SetArchived(ctx context.Context, sessionID string, archived bool) error {
	return s.withSessionLock(ctx, sessionID, func() error {
		return s.pool.Tx(ctx, func(tx *sql.Tx) error {
			v := 0
			if archived {
				v = 1
			}
			_, err := tx.ExecContext(ctx, "UPDATE sessions SET archived = ? WHERE id = ?", v, sessionID)
			return err
		})
	})
}

// UpdateTitle updates a session's title under the session lock.
func (s *Store) UpdateTitle(ctx context.Context, sessionID, title string) error {
	return s.withSessionLock(ctx, sessionID, func() error {
		return s.pool.Tx(ctx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, "UPDATE sessions SET title = ? WHERE id = ?", title, sessionID)
			return err
		})
	})
}

// UpdateLatestModel updates a session's latest_model under the session lock.
func (s *Store) UpdateLatestModel(ctx context.Context, sessionID, model string) error {
	return s.withSessionLock(ctx, sessionID, func() error {
		return s.pool.Tx(ctx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, "UPDATE sessions SET latest_model = ? WHERE id = ?", model, sessionID)
			return err
		})
	})
}

// EndSession stamps ended_at under the session lock.
func (s *Store) EndSession(ctx context.Context, sessionID string) error {
	return s.withSessionLock(ctx, sessionID, func() error {
		return s.pool.Tx(ctx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, "UPDATE sessions SET ended_at = ? WHERE id = ?",
				s.pool.Now().Format(storage.TimeLayout), sessionID)
			return err
		})
	})
}

// DeleteSession removes a session and cascades its events (ON DELETE
// CASCADE) and ancillary rows. Held under the global lock (spec §5).
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	return s.withGlobalLock(ctx, func() error {
		return s.pool.Tx(ctx, func(tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", sessionID)
			if err != nil {
				return err
			}
			n, _ := res.RowsAffected()
			if n == 0 {
				return apperr.NotFound(fmt.Sprintf("session %s not found", sessionID))
			}
			return nil
		})
	})
}

// WasInterrupted implements the was-interrupted predicate from spec §4.B:
// true iff the highest sequence among message.assistant events exceeds
// the highest sequence among stream.turn_end events, or there are
// assistant messages but no turn-end events at all.
func (s *Store) WasInterrupted(ctx context.Context, sessionID string) (bool, error) {
	var maxAssistant, maxTurnEnd sql.NullInt64
	if err := s.pool.DB().QueryRowContext(ctx,
		"SELECT MAX(sequence) FROM events WHERE session_id = ? AND type = ?",
		sessionID, string(EventMessageAssistant)).Scan(&maxAssistant); err != nil {
		return false, err
	}
	if !maxAssistant.Valid {
		return false, nil
	}
	if err := s.pool.DB().QueryRowContext(ctx,
		"SELECT MAX(sequence) FROM events WHERE session_id = ? AND type = ?",
		sessionID, string(EventStreamTurnEnd)).Scan(&maxTurnEnd); err != nil {
		return false, err
	}
	if !maxTurnEnd.Valid {
		return true, nil
	}
	return maxAssistant.Int64 > maxTurnEnd.Int64, nil
}
