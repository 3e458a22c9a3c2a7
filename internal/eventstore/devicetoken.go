package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tron-run/tron/internal/apperr"
	"github.com/tron-run/tron/internal/storage"
)

// DeviceToken is a push-notification registration.
type DeviceToken struct {
	ID          string
	Token       string
	SessionID   *string
	WorkspaceID *string
	Environment string
	Active      bool
	CreatedAt   string
	UpdatedAt   string
}

// UpsertDeviceToken inserts or reactivates a device token registration,
// held under the global lock per spec §5 ("device-token upsert/invalidate").
func (s *Store) UpsertDeviceToken(ctx context.Context, token, environment string, sessionID, workspaceID *string) (*DeviceToken, error) {
	var dt *DeviceToken
	err := s.withGlobalLock(ctx, func() error {
		now := s.pool.Now().Format(storage.TimeLayout)
		return s.pool.Tx(ctx, func(tx *sql.Tx) error {
			row := tx.QueryRowContext(ctx, "SELECT id FROM device_tokens WHERE device_token = ?", token)
			var id string
			err := row.Scan(&id)
			switch {
			case err == nil:
				if _, err := tx.ExecContext(ctx, `
					UPDATE device_tokens SET session_id = ?, workspace_id = ?, environment = ?, active = 1, updated_at = ?
					WHERE id = ?`, sessionID, workspaceID, environment, now, id); err != nil {
					return err
				}
			case errors.Is(err, sql.ErrNoRows):
				id = newID("dtok_")
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO device_tokens (id, device_token, session_id, workspace_id, environment, active, created_at, updated_at)
					VALUES (?, ?, ?, ?, ?, 1, ?, ?)`, id, token, sessionID, workspaceID, environment, now, now); err != nil {
					return err
				}
			default:
				return err
			}
			dt = &DeviceToken{ID: id, Token: token, SessionID: sessionID, WorkspaceID: workspaceID, Environment: environment, Active: true, CreatedAt: now, UpdatedAt: now}
			return nil
		})
	})
	return dt, err
}

// InvalidateDeviceToken marks a token inactive.
func (s *Store) InvalidateDeviceToken(ctx context.Context, token string) error {
	return s.withGlobalLock(ctx, func() error {
		return s.pool.Tx(ctx, func(tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx, "UPDATE device_tokens SET active = 0, updated_at = ? WHERE device_token = ?",
				s.pool.Now().Format(storage.TimeLayout), token)
			if err != nil {
				return err
			}
			n, _ := res.RowsAffected()
			if n == 0 {
				return apperr.NotFound(fmt.Sprintf("device token %s not found", token))
			}
			return nil
		})
	})
}
