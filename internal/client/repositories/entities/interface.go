// Package entities implements the local, per-type record tables backing the
// engine. All methods are raw row operations; transactional composition with
// audit and tombstone writes happens in the services layer.
package entities

import (
	"context"
	"time"

	"github.com/pasturelabs/herdsync/internal/client/models"
)

// Repository describes row-level operations on one entity table. Callers pass
// the entity type on every call; implementations are bound to a dbx.DBTX so
// the same repository works inside and outside a transaction.
type Repository interface {
	// Insert stores a new record. A natural-key collision with an active
	// record returns common.ErrDuplicateKey.
	Insert(ctx context.Context, typ models.EntityType, rec *models.Record) error

	// Update rewrites all mutable columns of an existing record.
	Update(ctx context.Context, typ models.EntityType, rec *models.Record) error

	// Get returns a record by local id, including soft-deleted rows.
	// Unknown ids return common.ErrNotFound.
	Get(ctx context.Context, typ models.EntityType, id string) (*models.Record, error)

	// GetByRemoteID returns the record carrying the given remote id.
	GetByRemoteID(ctx context.Context, typ models.EntityType, remoteID int64) (*models.Record, error)

	// List returns all records of the type; soft-deleted rows are included
	// only when includeDeleted is set.
	List(ctx context.Context, typ models.EntityType, includeDeleted bool) ([]models.Record, error)

	// ListUnsynced returns records whose local state the remote store has
	// not acknowledged. This is the push work queue.
	ListUnsynced(ctx context.Context, typ models.EntityType) ([]models.Record, error)

	// CountUnsynced reports the size of the push work queue.
	CountUnsynced(ctx context.Context, typ models.EntityType) (int, error)

	// MarkSynced sets the remote id and the synced flag, but only while the
	// record still has the updatedAt the push was made from. A record
	// mutated mid-push keeps synced=false and is retried next cycle.
	MarkSynced(ctx context.Context, typ models.EntityType, id string, remoteID int64, pushedUpdatedAt time.Time) error

	// DeleteRow removes a row without any tombstone bookkeeping. Used for
	// hard deletes (the caller records the tombstone) and for duplicate
	// cleanup after a successful sync.
	DeleteRow(ctx context.Context, typ models.EntityType, id string) error
}
