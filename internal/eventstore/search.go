package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
)

var indexedEventTypes = map[EventType]bool{
	EventMessageUser:      true,
	EventMessageAssistant: true,
	EventToolResult:       true,
}

type textEnvelope struct {
	Text    string `json:"text"`
	Content string `json:"content"`
}

// indexEventText extracts searchable text from an event payload and
// upserts it into events_fts, called from inside Append's transaction.
func indexEventText(ctx context.Context, tx *sql.Tx, ev *Event) error {
	if !indexedEventTypes[ev.Type] {
		return nil
	}
	var env textEnvelope
	_ = json.Unmarshal(ev.Payload, &env)
	text := env.Text
	if text == "" {
		text = env.Content
	}
	if text == "" {
		return nil
	}
	_, err := tx.ExecContext(ctx, "INSERT INTO events_fts (event_id, text) VALUES (?, ?)", ev.ID, text)
	return err
}

// EventSearchHit is one ranked result from SearchEvents.
type EventSearchHit struct {
	EventID string
	Rank    float64
}

// SearchEvents runs a BM25-ranked full-text query over indexed event
// content, optionally restricted to a workspace.
func (s *Store) SearchEvents(ctx context.Context, workspaceID, query string, limit int) ([]EventSearchHit, error) {
	sqlq := `
		SELECT e.id, bm25(events_fts) AS rank
		FROM events_fts
		JOIN events e ON e.id = events_fts.event_id
		WHERE events_fts MATCH ?`
	args := []any{query}
	if workspaceID != "" {
		sqlq += " AND e.workspace_id = ?"
		args = append(args, workspaceID)
	}
	sqlq += " ORDER BY rank LIMIT ?"
	args = append(args, limit)

	rows, err := s.pool.DB().QueryContext(ctx, sqlq, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var hits []EventSearchHit
	for rows.Next() {
		var h EventSearchHit
		if err := rows.Scan(&h.EventID, &h.Rank); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
