// Package profiles adapts profile-picture replacement to the saga engine.
//
// The "entity" here is the user's pending avatar change, not the user:
// while the upload is in flight the user keeps their previous photo_url
// (avatar_pending = true), approval swaps photo_url to the uploaded blob,
// and compensation abandons the change — it deletes the pending asset
// rows and resets avatar_pending, never the user.
package profiles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/voluntr/media-workers/internal/dbx"
	"github.com/voluntr/media-workers/internal/repos/assets"
	"github.com/voluntr/media-workers/internal/saga"
)

const kind = "profile"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Kind() string { return kind }

func (s *PostgresStore) Find(ctx context.Context, id int64) (*saga.Entity, error) {
	e := &saga.Entity{ID: id}
	var pending bool
	err := s.db.QueryRowContext(ctx,
		`SELECT avatar_pending, version FROM users WHERE id = $1`, id,
	).Scan(&pending, &e.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, saga.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select user: %w", err)
	}
	e.Approved = !pending

	e.Assets, err = assets.SelectForOwner(ctx, s.db, kind, id)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Save persists the avatar change. When the engine approves the entity
// the user's photo_url is swapped to the uploaded asset's URL; until then
// only version and asset state move.
func (s *PostgresStore) Save(ctx context.Context, e *saga.Entity) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var res sql.Result
		var err error
		if url, ok := approvedURL(e); ok {
			res, err = tx.ExecContext(ctx,
				`UPDATE users SET photo_url = $1, avatar_pending = FALSE, version = version + 1
				 WHERE id = $2 AND version = $3`,
				url, e.ID, e.Version)
		} else {
			res, err = tx.ExecContext(ctx,
				`UPDATE users SET avatar_pending = $1, version = version + 1
				 WHERE id = $2 AND version = $3`,
				!e.Approved, e.ID, e.Version)
		}
		if err != nil {
			return fmt.Errorf("failed to update user: %w", err)
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

// Delete abandons the pending avatar change. ErrNotFound means there was
// no change left to abandon (already compensated, or the user is gone).
func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		n, err := assets.DeleteForOwner(ctx, tx, kind, id)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE users SET avatar_pending = FALSE, version = version + 1
			 WHERE id = $1 AND avatar_pending = TRUE`, id)
		if err != nil {
			return fmt.Errorf("failed to reset avatar state: %w", err)
		}
		un, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected error: %w", err)
		}
		if n == 0 && un == 0 {
			return saga.ErrNotFound
		}
		return nil
	})
}

// approvedURL returns the uploaded avatar URL when the change is approved.
// A profile picture is conceptually a single asset; the newest uploaded
// one wins if the submission path ever staged more.
func approvedURL(e *saga.Entity) (string, bool) {
	if !e.Approved {
		return "", false
	}
	for i := len(e.Assets) - 1; i >= 0; i-- {
		if e.Assets[i].Status == saga.StatusUploaded && e.Assets[i].URL != "" {
			return e.Assets[i].URL, true
		}
	}
	return "", false
}
