package taskstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/tron-run/tron/internal/apperr"
	"github.com/tron-run/tron/internal/storage"
)

// Store is the task/project/area repository and service layer, one per
// storage pool, mirroring eventstore.Store's "wrap one pool" shape.
type Store struct {
	pool *storage.Pool
}

// New constructs a Store over an already-open pool.
func New(pool *storage.Pool) *Store {
	return &Store{pool: pool}
}

func emptyToNil(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func marshalTags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	b, _ := json.Marshal(tags)
	return string(b)
}

func unmarshalTags(s string) []string {
	var tags []string
	if s == "" {
		return nil
	}
	_ = json.Unmarshal([]byte(s), &tags)
	return tags
}

func marshalMetadata(m map[string]any) string {
	if m == nil {
		m = map[string]any{}
	}
	b, _ := json.Marshal(m)
	return string(b)
}

func unmarshalMetadata(s string) map[string]any {
	m := map[string]any{}
	if s == "" {
		return m
	}
	_ = json.Unmarshal([]byte(s), &m)
	return m
}

func nullTimeString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(storage.TimeLayout), Valid: true}
}

func scanNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := storage.ParseTime(ns.String)
	return &t
}

func scanNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

// buildUpdate constructs a dynamic `UPDATE table SET col=?, ... WHERE id
// = ?` statement from a column->value map, the sqlite/positional-param
// analogue of goclaw's execMapUpdate helper (store/pg/teams_tasks.go),
// which builds the same shape against Postgres's $n placeholders.
func buildUpdate(table string, updates map[string]any, id string) (string, []any) {
	cols := make([]string, 0, len(updates))
	args := make([]any, 0, len(updates)+1)
	for col, val := range updates {
		cols = append(cols, col+" = ?")
		args = append(args, val)
	}
	args = append(args, id)
	query := "UPDATE " + table + " SET " + strings.Join(cols, ", ") + " WHERE id = ?"
	return query, args
}

func execUpdate(ctx context.Context, tx *sql.Tx, table string, updates map[string]any, id string) error {
	if len(updates) == 0 {
		return nil
	}
	query, args := buildUpdate(table, updates, id)
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound(table + " not found: " + id)
	}
	return nil
}

