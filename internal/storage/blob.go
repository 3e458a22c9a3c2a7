package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Blob is a content-addressed record: id is the lowercase hex SHA-256 of
// content, so PutBlob is naturally idempotent.
type Blob struct {
	ID           string
	Content      []byte
	MimeType     string
	SizeOriginal int
	CreatedAt    string
}

// PutBlob stores content under its SHA-256 hash and returns the id,
// whether or not a row already existed for that hash.
func (p *Pool) PutBlob(ctx context.Context, content []byte, mimeType string) (string, error) {
	sum := sha256.Sum256(content)
	id := hex.EncodeToString(sum[:])

	err := p.Tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO blobs (id, content, mime_type, size_original, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			id, content, mimeType, len(content), p.Now().Format(TimeLayout))
		return err
	})
	if err != nil {
		return "", fmt.Errorf("put blob: %w", err)
	}
	return id, nil
}

// GetBlob fetches a blob by id, returning ErrNotFound if absent.
func (p *Pool) GetBlob(ctx context.Context, id string) (*Blob, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, content, mime_type, size_original, created_at FROM blobs WHERE id = ?`, id)
	var b Blob
	if err := row.Scan(&b.ID, &b.Content, &b.MimeType, &b.SizeOriginal, &b.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get blob: %w", err)
	}
	return &b, nil
}

// TimeLayout is the textual timestamp format every table stores TEXT
// timestamp columns in: millisecond-precision RFC3339, UTC.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// ParseTime parses a TimeLayout-formatted string, per convention the
// inverse of time.Format(TimeLayout). Malformed input (which should never
// occur for rows this package wrote) yields the zero time.
func ParseTime(s string) time.Time {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
