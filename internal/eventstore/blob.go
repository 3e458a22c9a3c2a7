package eventstore

import (
	"context"

	"github.com/tron-run/tron/internal/storage"
)

// PutBlob externalizes large content, held under the global lock since
// the blobs table is shared across sessions (spec §5).
func (s *Store) PutBlob(ctx context.Context, content []byte, mimeType string) (string, error) {
	var id string
	err := s.withGlobalLock(ctx, func() error {
		blobID, err := s.pool.PutBlob(ctx, content, mimeType)
		if err != nil {
			return err
		}
		id = blobID
		return nil
	})
	return id, err
}

// GetBlob fetches externalized content by id.
func (s *Store) GetBlob(ctx context.Context, id string) (*storage.Blob, error) {
	return s.pool.GetBlob(ctx, id)
}
