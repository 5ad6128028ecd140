package entities

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pasturelabs/herdsync/internal/client/models"
	"github.com/pasturelabs/herdsync/internal/common"
	"github.com/pasturelabs/herdsync/internal/dbx"
)

// timeFormat is how timestamps are stored in SQLite. RFC3339Nano keeps
// lexicographic order equal to chronological order.
const timeFormat = time.RFC3339Nano

// SQLiteRepository implements Repository over a dbx.DBTX, so the same
// repository can run against *sql.DB or inside *sql.Tx.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func fmtTime(t time.Time) string { return t.UTC().Format(timeFormat) }

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeFormat, s)
}

// isUniqueViolation matches the modernc.org/sqlite constraint error text.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (r *SQLiteRepository) Insert(ctx context.Context, typ models.EntityType, rec *models.Record) error {
	query := fmt.Sprintf(`INSERT INTO %s
		(id, remote_id, synced, created_at, updated_at, deleted_at, scope, natural_key, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, typ.Table)
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.RemoteID, rec.Synced,
		fmtTime(rec.CreatedAt), fmtTime(rec.UpdatedAt), nullTime(rec.DeletedAt),
		rec.Scope, rec.NaturalKey, string(rec.Data))
	if isUniqueViolation(err) {
		return common.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("failed to insert %s: %w", typ.Name, err)
	}
	return nil
}

func (r *SQLiteRepository) Update(ctx context.Context, typ models.EntityType, rec *models.Record) error {
	query := fmt.Sprintf(`UPDATE %s SET remote_id=?, synced=?, updated_at=?,
		deleted_at=?, scope=?, natural_key=?, data=? WHERE id=?`, typ.Table)
	res, err := r.db.ExecContext(ctx, query,
		rec.RemoteID, rec.Synced, fmtTime(rec.UpdatedAt), nullTime(rec.DeletedAt),
		rec.Scope, rec.NaturalKey, string(rec.Data), rec.ID)
	if isUniqueViolation(err) {
		return common.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", typ.Name, err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return common.ErrNotFound
	}
	return nil
}

const recordColumns = `id, remote_id, synced, created_at, updated_at, deleted_at, scope, natural_key, data`

func (r *SQLiteRepository) Get(ctx context.Context, typ models.EntityType, id string) (*models.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id=?`, recordColumns, typ.Table)
	row := r.db.QueryRowContext(ctx, query, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", typ.Name, err)
	}
	return rec, nil
}

func (r *SQLiteRepository) GetByRemoteID(ctx context.Context, typ models.EntityType, remoteID int64) (*models.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE remote_id=?`, recordColumns, typ.Table)
	row := r.db.QueryRowContext(ctx, query, remoteID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s by remote id: %w", typ.Name, err)
	}
	return rec, nil
}

func (r *SQLiteRepository) List(ctx context.Context, typ models.EntityType, includeDeleted bool) ([]models.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s`, recordColumns, typ.Table)
	if !includeDeleted {
		query += ` WHERE deleted_at IS NULL`
	}
	query += ` ORDER BY created_at, id`
	return r.selectRecords(ctx, typ, query)
}

func (r *SQLiteRepository) ListUnsynced(ctx context.Context, typ models.EntityType) ([]models.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE synced=0 ORDER BY updated_at, id`, recordColumns, typ.Table)
	return r.selectRecords(ctx, typ, query)
}

func (r *SQLiteRepository) CountUnsynced(ctx context.Context, typ models.EntityType) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE synced=0`, typ.Table)
	var n int
	if err := r.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count unsynced %s: %w", typ.Name, err)
	}
	return n, nil
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, typ models.EntityType, id string, remoteID int64, pushedUpdatedAt time.Time) error {
	// The updated_at guard keeps a record that was edited mid-push in the
	// work queue instead of silently acknowledging the stale state.
	query := fmt.Sprintf(`UPDATE %s SET remote_id=?, synced=1
		WHERE id=? AND updated_at=? AND (remote_id IS NULL OR remote_id=?)`, typ.Table)
	_, err := r.db.ExecContext(ctx, query, remoteID, id, fmtTime(pushedUpdatedAt), remoteID)
	if err != nil {
		return fmt.Errorf("failed to mark %s synced: %w", typ.Name, err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteRow(ctx context.Context, typ models.EntityType, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id=?`, typ.Table)
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete %s row: %w", typ.Name, err)
	}
	return nil
}

func (r *SQLiteRepository) selectRecords(ctx context.Context, typ models.EntityType, query string, args ...any) ([]models.Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", typ.Name, err)
	}
	defer rows.Close()

	var result []models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var (
		rec       models.Record
		remoteID  sql.NullInt64
		createdAt string
		updatedAt string
		deletedAt sql.NullString
		data      string
	)
	err := row.Scan(&rec.ID, &remoteID, &rec.Synced, &createdAt, &updatedAt,
		&deletedAt, &rec.Scope, &rec.NaturalKey, &data)
	if err != nil {
		return nil, err
	}
	if remoteID.Valid {
		rec.RemoteID = &remoteID.Int64
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("bad created_at: %w", err)
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("bad updated_at: %w", err)
	}
	if deletedAt.Valid {
		t, err := parseTime(deletedAt.String)
		if err != nil {
			return nil, fmt.Errorf("bad deleted_at: %w", err)
		}
		rec.DeletedAt = &t
	}
	rec.Data = []byte(data)
	return &rec, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}
