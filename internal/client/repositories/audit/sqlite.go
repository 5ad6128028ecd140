package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pasturelabs/herdsync/internal/client/models"
	"github.com/pasturelabs/herdsync/internal/common"
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

func (r *SQLiteRepository) Append(ctx context.Context, e *models.AuditEntry) error {
	query := `INSERT INTO audit_log (entity, entity_id, action, before, after, actor, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query,
		e.Entity, e.EntityID, string(e.Action),
		nullJSON(e.Before), nullJSON(e.After),
		e.Actor, e.Timestamp.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get audit entry id: %w", err)
	}
	e.ID = id
	return nil
}

func (r *SQLiteRepository) History(ctx context.Context, entity, entityID string) ([]models.AuditEntry, error) {
	query := `SELECT id, entity, entity_id, action, before, after, actor, timestamp
		FROM audit_log WHERE entity=? AND entity_id=? ORDER BY timestamp, id`
	rows, err := r.db.QueryContext(ctx, query, entity, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to select audit entries: %w", err)
	}
	defer rows.Close()

	var result []models.AuditEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id int64) (*models.AuditEntry, error) {
	query := `SELECT id, entity, entity_id, action, before, after, actor, timestamp
		FROM audit_log WHERE id=?`
	e, err := scanEntry(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit entry: %w", err)
	}
	return e, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.AuditEntry, error) {
	var (
		e      models.AuditEntry
		action string
		before sql.NullString
		after  sql.NullString
		ts     string
	)
	err := row.Scan(&e.ID, &e.Entity, &e.EntityID, &action, &before, &after, &e.Actor, &ts)
	if err != nil {
		return nil, err
	}
	e.Action = models.AuditAction(action)
	if before.Valid {
		e.Before = []byte(before.String)
	}
	if after.Valid {
		e.After = []byte(after.String)
	}
	if e.Timestamp, err = time.Parse(timeFormat, ts); err != nil {
		return nil, fmt.Errorf("bad timestamp: %w", err)
	}
	return &e, nil
}

func nullJSON(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
