package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pasturelabs/herdsync/internal/client/models"
	"github.com/pasturelabs/herdsync/internal/client/repositories/locks"
	"github.com/pasturelabs/herdsync/internal/common"
	"github.com/pasturelabs/herdsync/internal/dbx"
	"github.com/pasturelabs/herdsync/internal/logging"
)

// DefaultSweepInterval is how often expired locks are reclaimed.
const DefaultSweepInterval = 5 * time.Minute

// LockService hands out advisory, TTL-bound edit locks so two editors in the
// same process do not clobber one entity. It is not a distributed lock.
type LockService struct {
	db     *sql.DB
	logger logging.Logger
	now    func() time.Time
}

func NewLockService(db *sql.DB, logger logging.Logger) *LockService {
	return &LockService{db: db, logger: logger, now: time.Now}
}

// Acquire takes the lock on an entity and returns its token. An unexpired
// lock by a different holder fails with LockHeldError; an expired lock is
// not protective and is silently replaced. Re-acquiring one's own lock
// refreshes it and returns a new token.
func (s *LockService) Acquire(ctx context.Context, entityID, holder string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	now := s.now().UTC()

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := locks.NewSQLiteRepository(tx)
		existing, err := repo.Get(ctx, entityID)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return err
		}
		if existing != nil && !existing.Expired(now) && existing.Holder != holder {
			return &common.LockHeldError{
				EntityID:  entityID,
				Holder:    existing.Holder,
				ExpiresAt: existing.ExpiresAt,
			}
		}
		return repo.Upsert(ctx, &models.Lock{
			EntityID:   entityID,
			Holder:     holder,
			Token:      token,
			AcquiredAt: now,
			ExpiresAt:  now.Add(ttl),
		})
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

// Renew extends a held lock. Expired or released locks cannot be renewed.
func (s *LockService) Renew(ctx context.Context, token string, ttl time.Duration) error {
	now := s.now().UTC()
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := locks.NewSQLiteRepository(tx)
		lock, err := repo.GetByToken(ctx, token)
		if err != nil {
			return err
		}
		if lock.Expired(now) {
			return common.ErrNotFound
		}
		lock.ExpiresAt = now.Add(ttl)
		return repo.Upsert(ctx, lock)
	})
}

// Release drops a lock. A token that no longer exists is treated as success.
func (s *LockService) Release(ctx context.Context, token string) error {
	return locks.NewSQLiteRepository(s.db).DeleteByToken(ctx, token)
}

// SweepExpired reclaims every lock whose expiry has passed. Idempotent and
// safe to run concurrently with itself.
func (s *LockService) SweepExpired(ctx context.Context) (int, error) {
	return locks.NewSQLiteRepository(s.db).DeleteExpired(ctx, s.now().UTC())
}

// StartSweeper sweeps once immediately, then on every tick until ctx ends.
func (s *LockService) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	sweep := func() {
		n, err := s.SweepExpired(ctx)
		if err != nil {
			s.logger.Warn(ctx, "lock sweep failed", "error", err)
			return
		}
		if n > 0 {
			s.logger.Info(ctx, "reclaimed expired locks", "count", n)
		}
	}
	sweep()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sweep()
			}
		}
	}()
}
