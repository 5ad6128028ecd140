package locks

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

const lockColumns = `entity_id, holder, token, acquired_at, expires_at`

func (r *SQLiteRepository) Get(ctx context.Context, entityID string) (*models.Lock, error) {
	query := fmt.Sprintf(`SELECT %s FROM locks WHERE entity_id=?`, lockColumns)
	return r.getOne(ctx, query, entityID)
}

func (r *SQLiteRepository) GetByToken(ctx context.Context, token string) (*models.Lock, error) {
	query := fmt.Sprintf(`SELECT %s FROM locks WHERE token=?`, lockColumns)
	return r.getOne(ctx, query, token)
}

func (r *SQLiteRepository) getOne(ctx context.Context, query string, arg any) (*models.Lock, error) {
	var (
		l          models.Lock
		acquiredAt string
		expiresAt  string
	)
	err := r.db.QueryRowContext(ctx, query, arg).
		Scan(&l.EntityID, &l.Holder, &l.Token, &acquiredAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lock: %w", err)
	}
	if l.AcquiredAt, err = time.Parse(timeFormat, acquiredAt); err != nil {
		return nil, fmt.Errorf("bad acquired_at: %w", err)
	}
	if l.ExpiresAt, err = time.Parse(timeFormat, expiresAt); err != nil {
		return nil, fmt.Errorf("bad expires_at: %w", err)
	}
	return &l, nil
}

func (r *SQLiteRepository) Upsert(ctx context.Context, lock *models.Lock) error {
	query := `INSERT INTO locks (entity_id, holder, token, acquired_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET holder = excluded.holder,
			token = excluded.token,
			acquired_at = excluded.acquired_at,
			expires_at = excluded.expires_at`
	_, err := r.db.ExecContext(ctx, query,
		lock.EntityID, lock.Holder, lock.Token,
		lock.AcquiredAt.UTC().Format(timeFormat), lock.ExpiresAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("failed to upsert lock: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteByToken(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM locks WHERE token=?`, token); err != nil {
		return fmt.Errorf("failed to delete lock: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM locks WHERE expires_at < ?`,
		now.UTC().Format(timeFormat))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired locks: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(ra), nil
}
