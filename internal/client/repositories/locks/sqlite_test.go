package locks

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/pasturelabs/herdsync/internal/client/models"
	"github.com/pasturelabs/herdsync/internal/common"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:locks_"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE locks (
		entity_id TEXT PRIMARY KEY,
		holder TEXT NOT NULL,
		token TEXT NOT NULL UNIQUE,
		acquired_at TEXT NOT NULL,
		expires_at TEXT NOT NULL
	);`)
	require.NoError(t, err)
	return db
}

func testLock(entityID, holder, token string) *models.Lock {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &models.Lock{
		EntityID:   entityID,
		Holder:     holder,
		Token:      token,
		AcquiredAt: at,
		ExpiresAt:  at.Add(5 * time.Minute),
	}
}

func TestSQLiteRepository_UpsertAndGet(t *testing.T) {
	db := setupDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	l := testLock("a1", "alice", "tok-1")
	require.NoError(t, repo.Upsert(ctx, l))

	got, err := repo.Get(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, "alice", got.Holder)
	require.Equal(t, "tok-1", got.Token)
	require.True(t, l.ExpiresAt.Equal(got.ExpiresAt))

	byTok, err := repo.GetByToken(ctx, "tok-1")
	require.NoError(t, err)
	require.Equal(t, "a1", byTok.EntityID)
}

func TestSQLiteRepository_Get_NotFound(t *testing.T) {
	db := setupDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	_, err := repo.Get(ctx, "missing")
	require.ErrorIs(t, err, common.ErrNotFound)

	_, err = repo.GetByToken(ctx, "missing")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestSQLiteRepository_Upsert_ReplacesExisting(t *testing.T) {
	db := setupDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, testLock("a1", "alice", "tok-1")))
	require.NoError(t, repo.Upsert(ctx, testLock("a1", "bob", "tok-2")))

	got, err := repo.Get(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, "bob", got.Holder)
	require.Equal(t, "tok-2", got.Token)

	_, err = repo.GetByToken(ctx, "tok-1")
	require.ErrorIs(t, err, common.ErrNotFound, "old token must be gone")
}

func TestSQLiteRepository_DeleteByToken(t *testing.T) {
	db := setupDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, testLock("a1", "alice", "tok-1")))
	require.NoError(t, repo.DeleteByToken(ctx, "tok-1"))

	_, err := repo.Get(ctx, "a1")
	require.ErrorIs(t, err, common.ErrNotFound)

	// Deleting an unknown token is not an error.
	require.NoError(t, repo.DeleteByToken(ctx, "tok-1"))
}

func TestSQLiteRepository_DeleteExpired(t *testing.T) {
	db := setupDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	stale := testLock("a1", "alice", "tok-1")
	stale.ExpiresAt = now.Add(-time.Minute)
	require.NoError(t, repo.Upsert(ctx, stale))

	live := testLock("a2", "bob", "tok-2")
	live.ExpiresAt = now.Add(time.Minute)
	require.NoError(t, repo.Upsert(ctx, live))

	n, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = repo.Get(ctx, "a1")
	require.ErrorIs(t, err, common.ErrNotFound)

	_, err = repo.Get(ctx, "a2")
	require.NoError(t, err)
}
