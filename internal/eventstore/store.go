package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sqlite "modernc.org/sqlite"

	"github.com/tron-run/tron/internal/apperr"
	"github.com/tron-run/tron/internal/storage"
)

const globalLockKey = "global"

// Store is the Event Store: workspace/session lifecycle, event append
// with derived counters, and the lookup operations of spec §4.B. One
// Store wraps one storage.Pool.
type Store struct {
	pool     *storage.Pool
	global   *storage.LockTable
	sessions *sessionLocks
}

// New constructs a Store over an already-open pool.
func New(pool *storage.Pool) *Store {
	return &Store{
		pool:     pool,
		global:   storage.NewLockTable(),
		sessions: newSessionLocks(),
	}
}

func isBusyErr(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == 5 /* SQLITE_BUSY */ || code == 6 /* SQLITE_LOCKED */
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}

func (s *Store) withGlobalLock(ctx context.Context, fn func() error) error {
	return retryBusy(ctx, isBusyErr, func() error {
		return s.global.With(globalLockKey, fn)
	})
}

func (s *Store) withSessionLock(ctx context.Context, sessionID string, fn func() error) error {
	return retryBusy(ctx, isBusyErr, func() error {
		return s.sessions.withSession(sessionID, fn)
	})
}

// GetOrCreateWorkspace returns the workspace for path, creating it if
// absent. Held under the global lock per spec §5.
func (s *Store) GetOrCreateWorkspace(ctx context.Context, path, name string) (*Workspace, error) {
	var ws *Workspace
	err := s.withGlobalLock(ctx, func() error {
		row := s.pool.DB().QueryRowContext(ctx,
			"SELECT id, path, name, created_at FROM workspaces WHERE path = ?", path)
		w, err := scanWorkspace(row)
		if err == nil {
			ws = w
			return nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		w = &Workspace{ID: newID("ws_"), Path: path, Name: name, CreatedAt: s.pool.Now()}
		txErr := s.pool.Tx(ctx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx,
				"INSERT INTO workspaces (id, path, name, created_at) VALUES (?, ?, ?, ?)",
				w.ID, w.Path, w.Name, w.CreatedAt.Format(storage.TimeLayout))
			return err
		})
		if txErr != nil {
			return txErr
		}
		ws = w
		return nil
	})
	return ws, err
}

func scanWorkspace(row *sql.Row) (*Workspace, error) {
	var w Workspace
	var createdAt string
	if err := row.Scan(&w.ID, &w.Path, &w.Name, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	w.CreatedAt = storage.ParseTime(createdAt)
	return &w, nil
}

// CreateSessionParams configure session creation.
type CreateSessionParams struct {
	Model         string
	WorkspacePath string
	WorkspaceName string
	Title         *string
	Provider      *string
	Origin        *string
}

// CreateSession creates a workspace (if needed), a session, and the root
// session.start event, atomically with respect to other global-lock
// holders. Spec §4.B.1.
func (s *Store) CreateSession(ctx context.Context, p CreateSessionParams) (*Session, error) {
	if strings.TrimSpace(p.Model) == "" {
		return nil, apperr.InvalidInput("model is required")
	}
	ws, err := s.GetOrCreateWorkspace(ctx, p.WorkspacePath, p.WorkspaceName)
	if err != nil {
		return nil, err
	}

	provider := p.Provider
	if provider == nil {
		inferred := inferProvider(p.Model)
		provider = &inferred
	}

	var sess *Session
	err = s.withGlobalLock(ctx, func() error {
		now := s.pool.Now()
		sessionID := newSessionID()
		eventID := newEventID()

		payload, _ := json.Marshal(map[string]any{
			"model":    p.Model,
			"provider": *provider,
		})

		txErr := s.pool.Tx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO sessions (
					id, workspace_id, latest_model, working_directory, title,
					head_event_id, root_event_id, event_count, message_count, turn_count,
					total_input_tokens, total_output_tokens, total_cache_read_tokens,
					total_cache_creation_tokens, last_turn_input_tokens, cost,
					origin, archived, created_at, last_activity_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, 1, 0, 0, 0, 0, 0, 0, 0, 0, ?, 0, ?, ?)`,
				sessionID, ws.ID, p.Model, p.WorkspacePath, p.Title,
				eventID, eventID, p.Origin, now.Format(storage.TimeLayout), now.Format(storage.TimeLayout),
			); err != nil {
				return fmt.Errorf("insert session: %w", err)
			}

			if _, err := tx.ExecContext(ctx, `
				INSERT INTO events (
					id, session_id, parent_id, sequence, depth, type, timestamp,
					workspace_id, payload
				) VALUES (?, ?, NULL, 0, 0, ?, ?, ?, ?)`,
				eventID, sessionID, string(EventSessionStart), now.Format(storage.TimeLayout), ws.ID, payload,
			); err != nil {
				return fmt.Errorf("insert root event: %w", err)
			}
			return nil
		})
		if txErr != nil {
			return txErr
		}

		sess = &Session{
			ID: sessionID, WorkspaceID: ws.ID, LatestModel: p.Model, WorkingDirectory: p.WorkspacePath,
			Title: p.Title, HeadEventID: &eventID, RootEventID: &eventID, EventCount: 1,
			Origin: p.Origin, CreatedAt: now, LastActivityAt: now,
		}
		return nil
	})
	return sess, err
}

// AppendParams configure an event append.
type AppendParams struct {
	SessionID string
	Type      EventType
	Payload   []byte
	ParentID  *string
}

// Append inserts a new event under SessionID, defaulting parent to the
// current head, allocating the next sequence, and deriving session
// counters from the payload. Spec §4.B.2.
func (s *Store) Append(ctx context.Context, p AppendParams) (*Event, error) {
	var ev *Event
	err := s.withSessionLock(ctx, p.SessionID, func() error {
		return s.pool.Tx(ctx, func(tx *sql.Tx) error {
			sess, err := getSessionForUpdate(ctx, tx, p.SessionID)
			if err != nil {
				return err
			}

			parentID := p.ParentID
			if parentID == nil {
				parentID = sess.HeadEventID
			}
			var depth int
			if parentID != nil {
				pd, err := eventDepth(ctx, tx, *parentID)
				if err != nil {
					return err
				}
				depth = pd + 1
			}

			seq := sess.EventCount // next sequence == current count for a contiguous 0-based stream
			eventID := newEventID()
			now := s.pool.Now()

			hot := deriveHotFields(p.Type, p.Payload)

			if _, err := tx.ExecContext(ctx, `
				INSERT INTO events (
					id, session_id, parent_id, sequence, depth, type, timestamp, workspace_id,
					payload, role, tool_name, tool_call_id, turn, input_tokens, output_tokens,
					cache_read_tokens, cache_creation_tokens, checksum, model, latency_ms,
					stop_reason, has_thinking, provider_type, cost
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				eventID, p.SessionID, parentID, seq, depth, string(p.Type), now.Format(storage.TimeLayout),
				sess.WorkspaceID, p.Payload, hot.role, hot.toolName, hot.toolCallID, hot.turn,
				hot.inputTokens, hot.outputTokens, hot.cacheReadTokens, hot.cacheCreationTokens,
				hot.checksum, hot.model, hot.latencyMS, hot.stopReason, hot.hasThinking, hot.providerType, hot.cost,
			); err != nil {
				return fmt.Errorf("insert event: %w", err)
			}

			if err := indexEventText(ctx, tx, &Event{ID: eventID, Type: p.Type, Payload: p.Payload}); err != nil {
				return fmt.Errorf("index event text: %w", err)
			}

			delta := deriveCounterDeltas(p.Type, p.Payload)
			if _, err := tx.ExecContext(ctx, `
				UPDATE sessions SET
					head_event_id = ?, event_count = event_count + 1,
					message_count = message_count + ?, turn_count = turn_count + ?,
					total_input_tokens = total_input_tokens + ?,
					total_output_tokens = total_output_tokens + ?,
					total_cache_read_tokens = total_cache_read_tokens + ?,
					total_cache_creation_tokens = total_cache_creation_tokens + ?,
					last_turn_input_tokens = CASE WHEN ? THEN ? ELSE last_turn_input_tokens END,
					cost = cost + ?, last_activity_at = ?
				WHERE id = ?`,
				eventID, delta.messageCount, delta.turnCount,
				delta.inputTokens, delta.outputTokens, delta.cacheReadTokens, delta.cacheCreationTokens,
				delta.setLastTurnInput, delta.lastTurnInputTokens,
				delta.cost, now.Format(storage.TimeLayout), p.SessionID,
			); err != nil {
				return fmt.Errorf("update session counters: %w", err)
			}

			ev = &Event{
				ID: eventID, SessionID: p.SessionID, ParentID: parentID, Sequence: seq, Depth: depth,
				Type: p.Type, Timestamp: now, WorkspaceID: sess.WorkspaceID, Payload: p.Payload,
			}
			return nil
		})
	})
	return ev, err
}

// ForkParams configure a session fork.
type ForkParams struct {
	FromEventID string
	Model       *string
	Title       *string
}

// Fork creates a new session whose root is a session.fork event pointing
// at FromEventID (a cross-session parent pointer), inheriting workspace,
// working directory, and origin from the source session. Spec §4.B.3.
func (s *Store) Fork(ctx context.Context, p ForkParams) (*Session, error) {
	var child *Session
	err := s.withGlobalLock(ctx, func() error {
		srcEvent, srcSession, err := s.lookupEventAndSession(ctx, p.FromEventID)
		if err != nil {
			return err
		}

		model := srcSession.LatestModel
		if p.Model != nil {
			model = *p.Model
		}

		now := s.pool.Now()
		sessionID := newSessionID()
		eventID := newEventID()
		payload, _ := json.Marshal(map[string]any{"forkFromEventId": p.FromEventID})

		txErr := s.pool.Tx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO sessions (
					id, workspace_id, latest_model, working_directory, title,
					head_event_id, root_event_id, event_count, message_count, turn_count,
					total_input_tokens, total_output_tokens, total_cache_read_tokens,
					total_cache_creation_tokens, last_turn_input_tokens, cost,
					parent_session_id, fork_from_event_id, origin, archived, created_at, last_activity_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, 1, 0, 0, 0, 0, 0, 0, 0, 0, ?, ?, ?, 0, ?, ?)`,
				sessionID, srcSession.WorkspaceID, model, srcSession.WorkingDirectory, p.Title,
				eventID, eventID, srcSession.ID, p.FromEventID, srcSession.Origin,
				now.Format(storage.TimeLayout), now.Format(storage.TimeLayout),
			); err != nil {
				return fmt.Errorf("insert forked session: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO events (id, session_id, parent_id, sequence, depth, type, timestamp, workspace_id, payload)
				VALUES (?, ?, ?, 0, 0, ?, ?, ?, ?)`,
				eventID, sessionID, p.FromEventID, string(EventSessionFork), now.Format(storage.TimeLayout),
				srcSession.WorkspaceID, payload,
			); err != nil {
				return fmt.Errorf("insert fork root event: %w", err)
			}
			return nil
		})
		if txErr != nil {
			return txErr
		}

		_ = srcEvent // referenced for its existence check above
		child = &Session{
			ID: sessionID, WorkspaceID: srcSession.WorkspaceID, LatestModel: model,
			WorkingDirectory: srcSession.WorkingDirectory, Title: p.Title,
			HeadEventID: &eventID, RootEventID: &eventID, EventCount: 1,
			ParentSessionID: &srcSession.ID, ForkFromEventID: &p.FromEventID,
			Origin: srcSession.Origin, CreatedAt: now, LastActivityAt: now,
		}
		return nil
	})
	return child, err
}

var deletableTypes = map[EventType]bool{
	EventMessageUser:      true,
	EventMessageAssistant: true,
	EventToolResult:       true,
}

// DeleteMessage validates target's type and appends a message.deleted
// event naming it; the target row is never mutated. Spec §4.B.4.
func (s *Store) DeleteMessage(ctx context.Context, sessionID, targetEventID string, reason *string) (*Event, error) {
	target, err := s.GetEvent(ctx, targetEventID)
	if err != nil {
		return nil, err
	}
	if !deletableTypes[target.Type] {
		return nil, apperr.InvalidInput(fmt.Sprintf("event type %s cannot be deleted", target.Type))
	}
	payload, _ := json.Marshal(map[string]any{
		"targetEventId": targetEventID,
		"targetType":    string(target.Type),
		"reason":        reason,
	})
	return s.Append(ctx, AppendParams{SessionID: sessionID, Type: EventMessageDeleted, Payload: payload})
}

func (s *Store) lookupEventAndSession(ctx context.Context, eventID string) (*Event, *Session, error) {
	ev, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}
	sess, err := s.GetSession(ctx, ev.SessionID)
	if err != nil {
		return nil, nil, err
	}
	return ev, sess, nil
}

func getSessionForUpdate(ctx context.Context, tx *sql.Tx, sessionID string) (*Session, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, workspace_id, latest_model, working_directory, head_event_id, event_count
		FROM sessions WHERE id = ?`, sessionID)
	var sess Session
	if err := row.Scan(&sess.ID, &sess.WorkspaceID, &sess.LatestModel, &sess.WorkingDirectory, &sess.HeadEventID, &sess.EventCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound(fmt.Sprintf("session %s not found", sessionID))
		}
		return nil, err
	}
	return &sess, nil
}

func eventDepth(ctx context.Context, tx *sql.Tx, eventID string) (int, error) {
	var depth int
	err := tx.QueryRowContext(ctx, "SELECT depth FROM events WHERE id = ?", eventID).Scan(&depth)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperr.NotFound(fmt.Sprintf("event %s not found", eventID))
	}
	return depth, err
}
