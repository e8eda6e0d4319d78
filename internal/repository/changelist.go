package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// EncodedChangeList is a serialized changelist ready to be cached.
type EncodedChangeList struct {
	Number        int64
	FormatVersion int32
	CommitDate    time.Time
	Data          []byte
}

// CachedChangeList is a cache row as stored for a location.
type CachedChangeList struct {
	ID         int64
	LocationID int64
	EncodedChangeList
	CreatedAt time.Time
}

// ChangeListRepo caches encoded changelists per location in sqlite.
type ChangeListRepo struct {
	db *sql.DB
}

func NewChangeListRepo(db *sql.DB) *ChangeListRepo {
	return &ChangeListRepo{db: db}
}

// Replace swaps the cached rows of the location for lists in one transaction.
// On error the previous rows are kept.
func (r *ChangeListRepo) Replace(ctx context.Context, locationID int64, lists []EncodedChangeList) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM changelist_cache WHERE location_id = ?", locationID); err != nil {
		return err
	}
	if err := insert(ctx, tx, locationID, lists); err != nil {
		return err
	}
	return tx.Commit()
}

func insert(ctx context.Context, tx *sql.Tx, locationID int64, lists []EncodedChangeList) error {
	if len(lists) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO changelist_cache (location_id, number, format_version, commit_date, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (location_id, number) DO UPDATE SET
			format_version = excluded.format_version,
			commit_date = excluded.commit_date,
			data = excluded.data,
			created_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, cl := range lists {
		if _, err := stmt.ExecContext(ctx, locationID, cl.Number, cl.FormatVersion, cl.CommitDate.UnixMilli(), cl.Data); err != nil {
			return fmt.Errorf("failed to cache changelist %d: %w", cl.Number, err)
		}
	}
	return nil
}

// Load returns the cached rows of the location, newest first.
func (r *ChangeListRepo) Load(ctx context.Context, locationID int64) ([]CachedChangeList, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, location_id, number, format_version, commit_date, data, created_at
		FROM changelist_cache
		WHERE location_id = ?
		ORDER BY commit_date DESC, number DESC
	`, locationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lists []CachedChangeList
	for rows.Next() {
		var cl CachedChangeList
		var commitDate int64
		if err := rows.Scan(
			&cl.ID, &cl.LocationID, &cl.Number, &cl.FormatVersion, &commitDate, &cl.Data, &cl.CreatedAt,
		); err != nil {
			return nil, err
		}
		cl.CommitDate = time.UnixMilli(commitDate).UTC()
		lists = append(lists, cl)
	}
	return lists, rows.Err()
}

// Clear drops the cached rows of the location.
func (r *ChangeListRepo) Clear(ctx context.Context, locationID int64) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM changelist_cache WHERE location_id = ?", locationID)
	return err
}

func (r *ChangeListRepo) ClearAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM changelist_cache")
	return err
}

func (r *ChangeListRepo) Count(ctx context.Context, locationID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM changelist_cache WHERE location_id = ?", locationID,
	).Scan(&count)
	return count, err
}
