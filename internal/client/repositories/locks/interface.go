// Package locks persists advisory edit locks keyed by entity id.
package locks

import (
	"context"
	"time"

	"github.com/pasturelabs/herdsync/internal/client/models"
)

// Repository describes lock storage. TTL policy lives in the services layer;
// this package only stores and removes rows.
type Repository interface {
	// Get returns the lock on an entity, expired or not.
	// No lock returns common.ErrNotFound.
	Get(ctx context.Context, entityID string) (*models.Lock, error)

	// GetByToken returns the lock carrying the given token.
	GetByToken(ctx context.Context, token string) (*models.Lock, error)

	// Upsert stores a lock, replacing any previous lock on the entity.
	Upsert(ctx context.Context, lock *models.Lock) error

	// DeleteByToken removes a lock; a missing token is not an error.
	DeleteByToken(ctx context.Context, token string) error

	// DeleteExpired removes every lock with expires_at before now and
	// reports how many were removed. Safe to run concurrently.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
