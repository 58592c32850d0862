package dedup

import (
	"context"
	"fmt"

	"github.com/voluntr/media-workers/internal/dbx"
)

// PostgresGuard backs the guard with a table whose primary key spans the
// attempt identity, so marks survive restarts and are shared by every
// worker instance. TryMark relies on INSERT ... ON CONFLICT DO NOTHING
// reporting zero affected rows for duplicates.
type PostgresGuard struct {
	db dbx.DBTX
}

func NewPostgresGuard(db dbx.DBTX) *PostgresGuard {
	return &PostgresGuard{db: db}
}

func (g *PostgresGuard) TryMark(ctx context.Context, key Key) (bool, error) {
	query := `
		INSERT INTO media_upload_attempts (entity_kind, entity_id, retry_count)
		VALUES ($1, $2, $3)
		ON CONFLICT (entity_kind, entity_id, retry_count) DO NOTHING
	`
	res, err := g.db.ExecContext(ctx, query, key.Kind, key.EntityID, key.RetryCount)
	if err != nil {
		return false, fmt.Errorf("mark attempt %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

func (g *PostgresGuard) Unmark(ctx context.Context, key Key) error {
	query := `
		DELETE FROM media_upload_attempts
		WHERE entity_kind = $1 AND entity_id = $2 AND retry_count = $3
	`
	if _, err := g.db.ExecContext(ctx, query, key.Kind, key.EntityID, key.RetryCount); err != nil {
		return fmt.Errorf("unmark attempt %s: %w", key, err)
	}
	return nil
}
