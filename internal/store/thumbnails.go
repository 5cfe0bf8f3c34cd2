package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetThumbnail returns a cached image.
func (s *Store) GetThumbnail(ctx context.Context, key string) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM thumbnails WHERE cache_key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get thumbnail %q: %w", key, err)
	}
	return data, true, nil
}

// PutThumbnail caches an image, replacing any previous one under key.
func (s *Store) PutThumbnail(ctx context.Context, key string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO thumbnails (cache_key, data, seq)
		VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM thumbnails))
		ON CONFLICT(cache_key) DO UPDATE SET data = excluded.data, seq = excluded.seq
	`, key, data)
	if err != nil {
		return fmt.Errorf("put thumbnail %q: %w", key, err)
	}
	return nil
}

// PruneThumbnails keeps the newest keep images and deletes the rest. It
// returns the number deleted.
func (s *Store) PruneThumbnails(ctx context.Context, keep int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM thumbnails
		WHERE seq NOT IN (SELECT seq FROM thumbnails ORDER BY seq DESC LIMIT ?)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune thumbnails: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune thumbnails: %w", err)
	}
	return n, nil
}
