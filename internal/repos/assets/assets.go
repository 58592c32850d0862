// Package assets holds the media_assets SQL shared by every entity kind.
// The table is polymorphic over (owner_kind, owner_id).
package assets

import (
	"context"
	"fmt"

	"github.com/voluntr/media-workers/internal/dbx"
	"github.com/voluntr/media-workers/internal/saga"
)

// SelectForOwner loads the owner's assets ordered by position.
func SelectForOwner(ctx context.Context, db dbx.DBTX, kind string, ownerID int64) ([]saga.Asset, error) {
	query := `
		SELECT id, status, COALESCE(temp_path, ''), COALESCE(url, ''), content_type, file_name
		FROM media_assets
		WHERE owner_kind = $1 AND owner_id = $2
		ORDER BY position, id
	`
	rows, err := db.QueryContext(ctx, query, kind, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to select assets: %w", err)
	}
	defer rows.Close()

	var result []saga.Asset
	for rows.Next() {
		var a saga.Asset
		var status string
		if err := rows.Scan(&a.ID, &status, &a.TempPath, &a.URL, &a.ContentType, &a.FileName); err != nil {
			return nil, err
		}
		a.Status = saga.AssetStatus(status)
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateAll writes back status, staging path and url for each asset.
// Assets deleted concurrently are skipped; the owning row's version check
// already decided whether this save wins.
func UpdateAll(ctx context.Context, db dbx.DBTX, kind string, ownerID int64, list []saga.Asset) error {
	query := `
		UPDATE media_assets
		SET status = $1, temp_path = NULLIF($2, ''), url = NULLIF($3, '')
		WHERE id = $4 AND owner_kind = $5 AND owner_id = $6
	`
	for i := range list {
		a := &list[i]
		if _, err := db.ExecContext(ctx, query, string(a.Status), a.TempPath, a.URL, a.ID, kind, ownerID); err != nil {
			return fmt.Errorf("failed to update asset %d: %w", a.ID, err)
		}
	}
	return nil
}

// DeleteForOwner removes all of the owner's assets and returns how many
// rows went away.
func DeleteForOwner(ctx context.Context, db dbx.DBTX, kind string, ownerID int64) (int64, error) {
	res, err := db.ExecContext(ctx,
		`DELETE FROM media_assets WHERE owner_kind = $1 AND owner_id = $2`, kind, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete assets: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}
