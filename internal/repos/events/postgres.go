// Package events adapts the events table to the saga engine. An event is
// created invisible (approved = false) by the submission path and becomes
// visible only when every image uploaded.
package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/voluntr/media-workers/internal/dbx"
	"github.com/voluntr/media-workers/internal/repos/assets"
	"github.com/voluntr/media-workers/internal/saga"
)

const kind = "event"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Kind() string { return kind }

func (s *PostgresStore) Find(ctx context.Context, id int64) (*saga.Entity, error) {
	e := &saga.Entity{ID: id}
	err := s.db.QueryRowContext(ctx,
		`SELECT approved, version FROM events WHERE id = $1`, id,
	).Scan(&e.Approved, &e.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, saga.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select event: %w", err)
	}

	e.Assets, err = assets.SelectForOwner(ctx, s.db, kind, id)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Save writes the event and its assets in one transaction. The version
// predicate catches concurrent writers; zero affected rows means the row
// changed (or vanished) underneath us and surfaces as ErrConflict.
func (s *PostgresStore) Save(ctx context.Context, e *saga.Entity) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE events SET approved = $1, version = version + 1 WHERE id = $2 AND version = $3`,
			e.Approved, e.ID, e.Version)
		if err != nil {
			return fmt.Errorf("failed to update event: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected error: %w", err)
		}
		if n == 0 {
			return saga.ErrConflict
		}
		return assets.UpdateAll(ctx, tx, kind, e.ID, e.Assets)
	})
	if err != nil {
		return err
	}
	e.Version++
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := assets.DeleteForOwner(ctx, tx, kind, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete event: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected error: %w", err)
		}
		if n == 0 {
			return saga.ErrNotFound
		}
		return nil
	})
}
