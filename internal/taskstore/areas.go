package taskstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/tron-run/tron/internal/apperr"
	"github.com/tron-run/tron/internal/storage"
)

const areaColumns = `id, workspace_id, title, description, status, tags, sort_order, metadata, created_at, updated_at`

func scanArea(sc interface{ Scan(...any) error }) (*Area, error) {
	var a Area
	var desc sql.NullString
	var tags, metadata string
	var createdAt, updatedAt string
	if err := sc.Scan(&a.ID, &a.WorkspaceID, &a.Title, &desc, &a.Status, &tags, &a.SortOrder, &metadata, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if desc.Valid {
		a.Description = desc.String
	}
	a.Tags = unmarshalTags(tags)
	a.Metadata = unmarshalMetadata(metadata)
	a.CreatedAt = storage.ParseTime(createdAt)
	a.UpdatedAt = storage.ParseTime(updatedAt)
	return &a, nil
}

// CreateArea validates title is non-whitespace and inserts a new area.
func (s *Store) CreateArea(ctx context.Context, a *Area) (*Area, error) {
	if strings.TrimSpace(a.Title) == "" {
		return nil, apperr.InvalidInput("area title must be non-empty")
	}
	if a.Status == "" {
		a.Status = AreaActive
	}
	now := s.pool.Now()
	a.ID = newAreaID()
	a.CreatedAt, a.UpdatedAt = now, now

	err := s.pool.Tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO areas (id, workspace_id, title, description, status, tags, sort_order, metadata, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.WorkspaceID, a.Title, a.Description, string(a.Status),
			marshalTags(a.Tags), a.SortOrder, marshalMetadata(a.Metadata),
			a.CreatedAt.Format(storage.TimeLayout), a.UpdatedAt.Format(storage.TimeLayout))
		if err != nil {
			return err
		}
		return indexAreaText(ctx, tx, a)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Store) GetArea(ctx context.Context, id string) (*Area, error) {
	row := s.pool.DB().QueryRowContext(ctx, "SELECT "+areaColumns+" FROM areas WHERE id = ?", id)
	return scanArea(row)
}

// UpdateArea applies a partial update; deleting an area is handled by
// DeleteArea, whose dependent foreign keys the schema SETs NULL.
func (s *Store) UpdateArea(ctx context.Context, id string, updates map[string]any) (*Area, error) {
	updates["updated_at"] = s.pool.Now().Format(storage.TimeLayout)
	err := s.pool.Tx(ctx, func(tx *sql.Tx) error {
		return execUpdate(ctx, tx, "areas", updates, id)
	})
	if err != nil {
		return nil, err
	}
	return s.GetArea(ctx, id)
}

// DeleteArea deletes the area; projects.area_id and tasks.area_id are
// set NULL by the schema's ON DELETE SET NULL foreign keys.
func (s *Store) DeleteArea(ctx context.Context, id string) error {
	res, err := s.pool.DB().ExecContext(ctx, "DELETE FROM areas WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("area not found: " + id)
	}
	return nil
}

func (s *Store) ListAreas(ctx context.Context, workspaceID string, includeArchived bool) ([]*Area, error) {
	query := "SELECT " + areaColumns + " FROM areas WHERE workspace_id = ?"
	if !includeArchived {
		query += " AND status != 'archived'"
	}
	query += " ORDER BY sort_order, created_at"
	rows, err := s.pool.DB().QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var areas []*Area
	for rows.Next() {
		a, err := scanArea(rows)
		if err != nil {
			return nil, err
		}
		areas = append(areas, a)
	}
	return areas, rows.Err()
}
