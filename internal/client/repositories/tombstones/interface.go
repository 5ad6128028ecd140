// Package tombstones persists deletion markers for hard-deleted entities so
// the deletions can be propagated to the remote store.
package tombstones

import (
	"context"
	"time"

	"github.com/pasturelabs/herdsync/internal/client/models"
)

// Repository describes the tombstone log.
type Repository interface {
	// Record appends a tombstone. Called in the same transaction that
	// removes the entity row.
	Record(ctx context.Context, ts *models.Tombstone) error

	// ListPending returns tombstones the remote store has not confirmed.
	ListPending(ctx context.Context) ([]models.Tombstone, error)

	// MarkSynced flags one tombstone as confirmed.
	MarkSynced(ctx context.Context, id int64) error

	// CountPending reports how many deletions still await confirmation.
	CountPending(ctx context.Context) (int, error)

	// ListPrunable returns confirmed tombstones deleted before the cutoff.
	ListPrunable(ctx context.Context, olderThan time.Time) ([]models.Tombstone, error)

	// Prune removes confirmed tombstones deleted before the cutoff.
	Prune(ctx context.Context, olderThan time.Time) (int, error)
}
