package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pasturelabs/herdsync/internal/common"
)

func newLockService(t *testing.T) (*LockService, *fakeClock) {
	t.Helper()
	db := setupDB(t)
	clock := newFakeClock()
	svc := NewLockService(db, discardLogger())
	svc.now = clock.Now
	return svc, clock
}

func TestLockService_AcquireAndRelease(t *testing.T) {
	svc, _ := newLockService(t)
	ctx := context.Background()

	token, err := svc.Acquire(ctx, "a1", "alice", 5*time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	require.NoError(t, svc.Release(ctx, token))

	// Once released, anyone can take the lock.
	_, err = svc.Acquire(ctx, "a1", "bob", 5*time.Minute)
	require.NoError(t, err)
}

func TestLockService_Acquire_HeldByOther(t *testing.T) {
	svc, _ := newLockService(t)
	ctx := context.Background()

	_, err := svc.Acquire(ctx, "a1", "alice", 5*time.Minute)
	require.NoError(t, err)

	_, err = svc.Acquire(ctx, "a1", "bob", 5*time.Minute)
	var held *common.LockHeldError
	require.ErrorAs(t, err, &held)
	assert.Equal(t, "a1", held.EntityID)
	assert.Equal(t, "alice", held.Holder)
}

func TestLockService_Acquire_SameHolderRefreshes(t *testing.T) {
	svc, clock := newLockService(t)
	ctx := context.Background()

	first, err := svc.Acquire(ctx, "a1", "alice", 5*time.Minute)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	second, err := svc.Acquire(ctx, "a1", "alice", 5*time.Minute)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	// The old token is dead after the refresh.
	err = svc.Renew(ctx, first, 5*time.Minute)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestLockService_Acquire_ExpiredLockReplaced(t *testing.T) {
	svc, clock := newLockService(t)
	ctx := context.Background()

	_, err := svc.Acquire(ctx, "a1", "alice", time.Minute)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)

	// An expired lock protects nothing, so bob walks right in.
	_, err = svc.Acquire(ctx, "a1", "bob", time.Minute)
	require.NoError(t, err)
}

func TestLockService_Renew(t *testing.T) {
	svc, clock := newLockService(t)
	ctx := context.Background()

	token, err := svc.Acquire(ctx, "a1", "alice", time.Minute)
	require.NoError(t, err)

	clock.Advance(30 * time.Second)
	require.NoError(t, svc.Renew(ctx, token, time.Minute))

	// Without the renewal the lock would have expired by now.
	clock.Advance(45 * time.Second)
	_, err = svc.Acquire(ctx, "a1", "bob", time.Minute)
	var held *common.LockHeldError
	require.ErrorAs(t, err, &held)
}

func TestLockService_Renew_Expired(t *testing.T) {
	svc, clock := newLockService(t)
	ctx := context.Background()

	token, err := svc.Acquire(ctx, "a1", "alice", time.Minute)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	err = svc.Renew(ctx, token, time.Minute)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestLockService_Release_UnknownTokenIsNoop(t *testing.T) {
	svc, _ := newLockService(t)
	require.NoError(t, svc.Release(context.Background(), "never-issued"))
}

func TestLockService_SweepExpired(t *testing.T) {
	svc, clock := newLockService(t)
	ctx := context.Background()

	_, err := svc.Acquire(ctx, "a1", "alice", time.Minute)
	require.NoError(t, err)
	_, err = svc.Acquire(ctx, "a2", "alice", time.Hour)
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)

	n, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "sweep is idempotent")
}
