package tombstones

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pasturelabs/herdsync/internal/client/models"
	"github.com/pasturelabs/herdsync/internal/dbx"
)

const timeFormat = time.RFC3339Nano

// SQLiteRepository implements Repository over a dbx.DBTX.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Record(ctx context.Context, ts *models.Tombstone) error {
	query := `INSERT INTO tombstones (entity, uuid, remote_id, deleted_at, synced)
		VALUES (?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query,
		ts.Entity, ts.UUID, ts.RemoteID, ts.DeletedAt.UTC().Format(timeFormat), ts.Synced)
	if err != nil {
		return fmt.Errorf("failed to record tombstone: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get tombstone id: %w", err)
	}
	ts.ID = id
	return nil
}

func (r *SQLiteRepository) ListPending(ctx context.Context) ([]models.Tombstone, error) {
	query := `SELECT id, entity, uuid, remote_id, deleted_at, synced
		FROM tombstones WHERE synced=0 ORDER BY id`
	return r.selectTombstones(ctx, query)
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE tombstones SET synced=1 WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark tombstone synced: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) CountPending(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tombstones WHERE synced=0`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending tombstones: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) ListPrunable(ctx context.Context, olderThan time.Time) ([]models.Tombstone, error) {
	query := `SELECT id, entity, uuid, remote_id, deleted_at, synced
		FROM tombstones WHERE synced=1 AND deleted_at < ? ORDER BY id`
	return r.selectTombstones(ctx, query, olderThan.UTC().Format(timeFormat))
}

func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM tombstones WHERE synced=1 AND deleted_at < ?`,
		olderThan.UTC().Format(timeFormat))
	if err != nil {
		return 0, fmt.Errorf("failed to prune tombstones: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(ra), nil
}

func (r *SQLiteRepository) selectTombstones(ctx context.Context, query string, args ...any) ([]models.Tombstone, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select tombstones: %w", err)
	}
	defer rows.Close()

	var result []models.Tombstone
	for rows.Next() {
		var (
			ts        models.Tombstone
			remoteID  sql.NullInt64
			deletedAt string
		)
		if err := rows.Scan(&ts.ID, &ts.Entity, &ts.UUID, &remoteID, &deletedAt, &ts.Synced); err != nil {
			return nil, err
		}
		if remoteID.Valid {
			ts.RemoteID = &remoteID.Int64
		}
		if ts.DeletedAt, err = time.Parse(timeFormat, deletedAt); err != nil {
			return nil, fmt.Errorf("bad deleted_at: %w", err)
		}
		result = append(result, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
