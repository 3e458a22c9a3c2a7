package taskstore

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

func taskSearchText(t *Task) string {
	return t.Title + "\n" + t.Description + "\n" + strings.Join(t.Tags, " ")
}

func areaSearchText(a *Area) string {
	return a.Title + "\n" + a.Description + "\n" + strings.Join(a.Tags, " ")
}

func indexTaskText(ctx context.Context, tx *sql.Tx, t *Task) error {
	_, err := tx.ExecContext(ctx, "INSERT INTO tasks_fts (task_id, text) VALUES (?, ?)", t.ID, taskSearchText(t))
	return err
}

func reindexTaskText(ctx context.Context, tx *sql.Tx, id string) error {
	row := tx.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
	t, err := scanTask(row)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM tasks_fts WHERE task_id = ?", id); err != nil {
		return err
	}
	return indexTaskText(ctx, tx, t)
}

func indexAreaText(ctx context.Context, tx *sql.Tx, a *Area) error {
	_, err := tx.ExecContext(ctx, "INSERT INTO areas_fts (area_id, text) VALUES (?, ?)", a.ID, areaSearchText(a))
	return err
}

// searchHit pairs a row id with its BM25 rank (more negative = better
// match, sqlite FTS5's convention) for tie-break ordering.
type searchHit struct {
	id   string
	rank float64
}

// SearchTasks ranks by BM25, breaking exact ties with Levenshtein
// distance against the raw query (closer to the query string wins),
// per §4.E's "FTS search uses the FTS virtual table and ranks by BM25".
func (s *Store) SearchTasks(ctx context.Context, workspaceID, query string, limit int) ([]*Task, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.DB().QueryContext(ctx,
		`SELECT t.task_id, bm25(tasks_fts) AS rank
		 FROM tasks_fts t
		 JOIN tasks ON tasks.id = t.task_id
		 WHERE tasks_fts MATCH ? AND tasks.workspace_id = ?
		 ORDER BY rank LIMIT ?`, query, workspaceID, limit*2)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []searchHit
	for rows.Next() {
		var h searchHit
		if err := rows.Scan(&h.id, &h.rank); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tasks := make([]*Task, 0, len(hits))
	titles := make(map[string]string, len(hits))
	for _, h := range hits {
		t, err := s.GetTask(ctx, h.id)
		if err != nil {
			continue
		}
		tasks = append(tasks, t)
		titles[t.ID] = t.Title
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		ri, rj := rankOf(hits, tasks[i].ID), rankOf(hits, tasks[j].ID)
		if ri != rj {
			return ri < rj
		}
		return levenshtein.ComputeDistance(query, titles[tasks[i].ID]) < levenshtein.ComputeDistance(query, titles[tasks[j].ID])
	})
	if len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks, nil
}

func rankOf(hits []searchHit, id string) float64 {
	for _, h := range hits {
		if h.id == id {
			return h.rank
		}
	}
	return 0
}

// SearchAreas ranks by BM25 over the areas FTS table.
func (s *Store) SearchAreas(ctx context.Context, workspaceID, query string, limit int) ([]*Area, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.DB().QueryContext(ctx,
		`SELECT a.area_id
		 FROM areas_fts a
		 JOIN areas ON areas.id = a.area_id
		 WHERE areas_fts MATCH ? AND areas.workspace_id = ?
		 ORDER BY bm25(areas_fts) LIMIT ?`, query, workspaceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var areas []*Area
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		a, err := s.GetArea(ctx, id)
		if err != nil {
			continue
		}
		areas = append(areas, a)
	}
	return areas, rows.Err()
}
