package services

import (
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/pasturelabs/herdsync/internal/logging"
)

// setupDB builds an in-memory replica with the subset of the schema the
// service tests touch: one soft-delete table, one hard-delete table, and the
// bookkeeping tables.
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:services_"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
	CREATE TABLE farms (
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
	CREATE UNIQUE INDEX idx_farms_natural_key ON farms(scope, natural_key)
	  WHERE deleted_at IS NULL AND natural_key <> '';

	CREATE TABLE animals (
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
	  WHERE deleted_at IS NULL AND natural_key <> '';

	CREATE TABLE births (
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
	CREATE TABLE weanings (
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
	CREATE TABLE tags (
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
	CREATE TABLE grants (
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

	CREATE TABLE tombstones (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entity TEXT NOT NULL,
		uuid TEXT NOT NULL,
		remote_id INTEGER,
		deleted_at TEXT NOT NULL,
		synced INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE locks (
		entity_id TEXT PRIMARY KEY,
		holder TEXT NOT NULL,
		token TEXT NOT NULL UNIQUE,
		acquired_at TEXT NOT NULL,
		expires_at TEXT NOT NULL
	);

	CREATE TABLE audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entity TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		action TEXT NOT NULL,
		before TEXT,
		after TEXT,
		actor TEXT NOT NULL,
		timestamp TEXT NOT NULL
	);

	CREATE TABLE metadata (
		key TEXT PRIMARY KEY,
		value BLOB
	);`)
	require.NoError(t, err)
	return db
}

func discardLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// fakeClock hands out a controllable time to the services under test.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }
func (c *fakeClock) Set(t time.Time)         { c.t = t }
