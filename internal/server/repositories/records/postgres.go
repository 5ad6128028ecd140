package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pasturelabs/herdsync/internal/common"
	"github.com/pasturelabs/herdsync/internal/dbx"
	"github.com/pasturelabs/herdsync/internal/server/models"
)

// PostgresRepository implements Repository over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *PostgresRepository) Upsert(ctx context.Context, entity string, rec *models.Record) (int64, error) {
	table, err := TableFor(entity)
	if err != nil {
		return 0, err
	}

	var (
		remoteID  int64
		updatedAt time.Time
	)
	query := fmt.Sprintf(`SELECT remote_id, updated_at FROM %s WHERE uuid = $1`, table)
	err = r.db.QueryRowContext(ctx, query, rec.UUID).Scan(&remoteID, &updatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		query = fmt.Sprintf(`INSERT INTO %s (uuid, scope, natural_key, payload, updated_at, server_updated_at, deleted)
			VALUES ($1, $2, $3, $4, $5, now(), $6) RETURNING remote_id`, table)
		err = r.db.QueryRowContext(ctx, query,
			rec.UUID, rec.Scope, rec.NaturalKey, string(rec.Payload),
			rec.UpdatedAt.UTC(), rec.Deleted).Scan(&remoteID)
		if isUniqueViolation(err) {
			return 0, common.ErrDuplicateKey
		}
		if err != nil {
			return 0, fmt.Errorf("failed to insert %s: %w", entity, err)
		}
		return remoteID, nil
	case err != nil:
		return 0, fmt.Errorf("failed to look up %s: %w", entity, err)
	}

	// Last writer wins; a stale upsert is acknowledged without a write and
	// the pusher reconciles on its next pull.
	if !rec.UpdatedAt.After(updatedAt) {
		return remoteID, nil
	}
	query = fmt.Sprintf(`UPDATE %s SET scope=$1, natural_key=$2, payload=$3,
		updated_at=$4, server_updated_at=now(), deleted=$5 WHERE uuid=$6`, table)
	_, err = r.db.ExecContext(ctx, query,
		rec.Scope, rec.NaturalKey, string(rec.Payload),
		rec.UpdatedAt.UTC(), rec.Deleted, rec.UUID)
	if isUniqueViolation(err) {
		return 0, common.ErrDuplicateKey
	}
	if err != nil {
		return 0, fmt.Errorf("failed to update %s: %w", entity, err)
	}
	return remoteID, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, entity string, remoteID int64) error {
	table, err := TableFor(entity)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %s SET deleted=true, server_updated_at=now()
		WHERE remote_id=$1 AND NOT deleted`, table)
	res, err := r.db.ExecContext(ctx, query, remoteID)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", entity, err)
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

func (r *PostgresRepository) Changes(ctx context.Context, entity string, since time.Time) ([]models.Record, error) {
	table, err := TableFor(entity)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT remote_id, uuid, scope, natural_key, payload,
		updated_at, server_updated_at, deleted
		FROM %s WHERE server_updated_at > $1 ORDER BY server_updated_at, remote_id`, table)
	rows, err := r.db.QueryContext(ctx, query, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to select %s changes: %w", entity, err)
	}
	defer rows.Close()

	var result []models.Record
	for rows.Next() {
		var (
			rec     models.Record
			payload string
		)
		err := rows.Scan(&rec.RemoteID, &rec.UUID, &rec.Scope, &rec.NaturalKey,
			&payload, &rec.UpdatedAt, &rec.ServerUpdatedAt, &rec.Deleted)
		if err != nil {
			return nil, err
		}
		rec.Payload = []byte(payload)
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
