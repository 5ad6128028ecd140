package entities

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
	db, err := sql.Open("sqlite", "file:entities_"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE animals (
		id TEXT PRIMARY KEY,
		remote_id INTEGER UNIQUE,
		synced INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		deleted_at TEXT,
		scope TEXT NOT NULL DEFAULT '',
		natural_key TEXT NOT NULL DEFAULT '',
		data TEXT NOT NULL DEFAULT '{}'
	);
	CREATE UNIQUE INDEX idx_animals_natural_key ON animals(scope, natural_key)
	  WHERE deleted_at IS NULL AND natural_key <> '';`)
	require.NoError(t, err)
	return db
}

func testRecord(id string) *models.Record {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &models.Record{
		ID:         id,
		Synced:     false,
		CreatedAt:  now,
		UpdatedAt:  now,
		Scope:      "farm-1",
		NaturalKey: "tag-" + id,
		Data:       []byte(`{"breed":"angus"}`),
	}
}

func TestSQLiteRepository_InsertAndGet(t *testing.T) {
	db := setupDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	rec := testRecord("a1")
	require.NoError(t, repo.Insert(ctx, models.TypeAnimal, rec))

	got, err := repo.Get(ctx, models.TypeAnimal, "a1")
	require.NoError(t, err)
	require.Equal(t, rec.ID, got.ID)
	require.Nil(t, got.RemoteID)
	require.False(t, got.Synced)
	require.True(t, rec.UpdatedAt.Equal(got.UpdatedAt))
	require.Equal(t, rec.Scope, got.Scope)
	require.Equal(t, rec.NaturalKey, got.NaturalKey)
	require.JSONEq(t, `{"breed":"angus"}`, string(got.Data))
}

func TestSQLiteRepository_Get_NotFound(t *testing.T) {
	db := setupDB(t)
	repo := NewSQLiteRepository(db)

	_, err := repo.Get(context.Background(), models.TypeAnimal, "missing")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestSQLiteRepository_Insert_DuplicateNaturalKey(t *testing.T) {
	db := setupDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	a := testRecord("a1")
	b := testRecord("a2")
	b.NaturalKey = a.NaturalKey

	require.NoError(t, repo.Insert(ctx, models.TypeAnimal, a))
	err := repo.Insert(ctx, models.TypeAnimal, b)
	require.ErrorIs(t, err, common.ErrDuplicateKey)
}

func TestSQLiteRepository_Insert_SoftDeletedKeyReusable(t *testing.T) {
	db := setupDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	a := testRecord("a1")
	deleted := a.CreatedAt.Add(time.Hour)
	a.DeletedAt = &deleted
	require.NoError(t, repo.Insert(ctx, models.TypeAnimal, a))

	// The partial index ignores soft-deleted rows, so the key is free again.
	b := testRecord("a2")
	b.NaturalKey = a.NaturalKey
	require.NoError(t, repo.Insert(ctx, models.TypeAnimal, b))
}

func TestSQLiteRepository_Update(t *testing.T) {
	db := setupDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	rec := testRecord("a1")
	require.NoError(t, repo.Insert(ctx, models.TypeAnimal, rec))

	rec.UpdatedAt = rec.UpdatedAt.Add(time.Minute)
	rec.Data = []byte(`{"breed":"hereford"}`)
	require.NoError(t, repo.Update(ctx, models.TypeAnimal, rec))

	got, err := repo.Get(ctx, models.TypeAnimal, "a1")
	require.NoError(t, err)
	require.True(t, rec.UpdatedAt.Equal(got.UpdatedAt))
	require.JSONEq(t, `{"breed":"hereford"}`, string(got.Data))
}

func TestSQLiteRepository_Update_NotFound(t *testing.T) {
	db := setupDB(t)
	repo := NewSQLiteRepository(db)

	err := repo.Update(context.Background(), models.TypeAnimal, testRecord("missing"))
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestSQLiteRepository_List_ExcludesDeleted(t *testing.T) {
	db := setupDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	alive := testRecord("a1")
	require.NoError(t, repo.Insert(ctx, models.TypeAnimal, alive))

	gone := testRecord("a2")
	gone.CreatedAt = gone.CreatedAt.Add(time.Second)
	deleted := gone.CreatedAt.Add(time.Hour)
	gone.DeletedAt = &deleted
	require.NoError(t, repo.Insert(ctx, models.TypeAnimal, gone))

	visible, err := repo.List(ctx, models.TypeAnimal, false)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	require.Equal(t, "a1", visible[0].ID)

	all, err := repo.List(ctx, models.TypeAnimal, true)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.NotNil(t, all[1].DeletedAt)
}

func TestSQLiteRepository_UnsyncedQueue(t *testing.T) {
	db := setupDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	pending := testRecord("a1")
	require.NoError(t, repo.Insert(ctx, models.TypeAnimal, pending))

	done := testRecord("a2")
	done.Synced = true
	rid := int64(7)
	done.RemoteID = &rid
	require.NoError(t, repo.Insert(ctx, models.TypeAnimal, done))

	queue, err := repo.ListUnsynced(ctx, models.TypeAnimal)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	require.Equal(t, "a1", queue[0].ID)

	n, err := repo.CountUnsynced(ctx, models.TypeAnimal)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestSQLiteRepository_MarkSynced(t *testing.T) {
	db := setupDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	rec := testRecord("a1")
	require.NoError(t, repo.Insert(ctx, models.TypeAnimal, rec))

	require.NoError(t, repo.MarkSynced(ctx, models.TypeAnimal, "a1", 42, rec.UpdatedAt))

	got, err := repo.Get(ctx, models.TypeAnimal, "a1")
	require.NoError(t, err)
	require.True(t, got.Synced)
	require.NotNil(t, got.RemoteID)
	require.Equal(t, int64(42), *got.RemoteID)
}

func TestSQLiteRepository_MarkSynced_KeepsMidPushEdit(t *testing.T) {
	db := setupDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	rec := testRecord("a1")
	require.NoError(t, repo.Insert(ctx, models.TypeAnimal, rec))

	// The record was edited while the push was in flight.
	pushed := rec.UpdatedAt
	rec.UpdatedAt = pushed.Add(time.Second)
	require.NoError(t, repo.Update(ctx, models.TypeAnimal, rec))

	require.NoError(t, repo.MarkSynced(ctx, models.TypeAnimal, "a1", 42, pushed))

	got, err := repo.Get(ctx, models.TypeAnimal, "a1")
	require.NoError(t, err)
	require.False(t, got.Synced, "edited record must stay in the work queue")
}

func TestSQLiteRepository_DeleteRow(t *testing.T) {
	db := setupDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, models.TypeAnimal, testRecord("a1")))
	require.NoError(t, repo.DeleteRow(ctx, models.TypeAnimal, "a1"))

	_, err := repo.Get(ctx, models.TypeAnimal, "a1")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestSQLiteRepository_GetByRemoteID(t *testing.T) {
	db := setupDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	rec := testRecord("a1")
	rid := int64(99)
	rec.RemoteID = &rid
	require.NoError(t, repo.Insert(ctx, models.TypeAnimal, rec))

	got, err := repo.GetByRemoteID(ctx, models.TypeAnimal, 99)
	require.NoError(t, err)
	require.Equal(t, "a1", got.ID)

	_, err = repo.GetByRemoteID(ctx, models.TypeAnimal, 100)
	require.ErrorIs(t, err, common.ErrNotFound)
}
