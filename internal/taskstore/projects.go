package taskstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/tron-run/tron/internal/apperr"
	"github.com/tron-run/tron/internal/storage"
)

const projectColumns = `id, workspace_id, area_id, title, description, status, tags, metadata, completed_at, created_at, updated_at`

func scanProject(sc interface{ Scan(...any) error }) (*Project, error) {
	var p Project
	var areaID, desc, completedAt sql.NullString
	var tags, metadata string
	var createdAt, updatedAt string
	if err := sc.Scan(&p.ID, &p.WorkspaceID, &areaID, &p.Title, &desc, &p.Status, &tags, &metadata, &completedAt, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	p.AreaID = scanNullString(areaID)
	if desc.Valid {
		p.Description = desc.String
	}
	p.Tags = unmarshalTags(tags)
	p.Metadata = unmarshalMetadata(metadata)
	p.CompletedAt = scanNullTime(completedAt)
	p.CreatedAt = storage.ParseTime(createdAt)
	p.UpdatedAt = storage.ParseTime(updatedAt)
	return &p, nil
}

func (s *Store) CreateProject(ctx context.Context, p *Project) (*Project, error) {
	if strings.TrimSpace(p.Title) == "" {
		return nil, apperr.InvalidInput("project title must be non-empty")
	}
	if p.Status == "" {
		p.Status = ProjectActive
	}
	now := s.pool.Now()
	p.ID = newProjectID()
	p.CreatedAt, p.UpdatedAt = now, now

	_, err := s.pool.DB().ExecContext(ctx,
		`INSERT INTO projects (id, workspace_id, area_id, title, description, status, tags, metadata, completed_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.WorkspaceID, p.AreaID, p.Title, p.Description, string(p.Status),
		marshalTags(p.Tags), marshalMetadata(p.Metadata), nullTimeString(p.CompletedAt),
		p.CreatedAt.Format(storage.TimeLayout), p.UpdatedAt.Format(storage.TimeLayout))
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	row := s.pool.DB().QueryRowContext(ctx, "SELECT "+projectColumns+" FROM projects WHERE id = ?", id)
	return scanProject(row)
}

// UpdateProject applies a partial update. Entering ProjectCompleted
// auto-manages completed_at the same way task status transitions do;
// callers that just want a plain field update can pass updates without
// a "status" key.
func (s *Store) UpdateProject(ctx context.Context, id string, updates map[string]any) (*Project, error) {
	now := s.pool.Now()
	updates["updated_at"] = now.Format(storage.TimeLayout)
	if status, ok := updates["status"]; ok {
		if status == string(ProjectCompleted) {
			updates["completed_at"] = now.Format(storage.TimeLayout)
		} else {
			updates["completed_at"] = nil
		}
	}
	err := s.pool.Tx(ctx, func(tx *sql.Tx) error {
		return execUpdate(ctx, tx, "projects", updates, id)
	})
	if err != nil {
		return nil, err
	}
	return s.GetProject(ctx, id)
}

// DeleteProject deletes the project; tasks.project_id is set NULL by
// the schema's ON DELETE SET NULL foreign key.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	res, err := s.pool.DB().ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("project not found: " + id)
	}
	return nil
}

func (s *Store) ListProjects(ctx context.Context, workspaceID string, areaID *string, includeArchived bool) ([]*Project, error) {
	query := "SELECT " + projectColumns + " FROM projects WHERE workspace_id = ?"
	args := []any{workspaceID}
	if areaID != nil {
		query += " AND area_id = ?"
		args = append(args, *areaID)
	}
	if !includeArchived {
		query += " AND status != 'archived'"
	}
	query += " ORDER BY created_at"
	rows, err := s.pool.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}
