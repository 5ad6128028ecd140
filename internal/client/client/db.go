package client

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pasturelabs/herdsync/internal/client/migrations"
	"github.com/pasturelabs/herdsync/internal/client/repositories/audit"
	"github.com/pasturelabs/herdsync/internal/client/repositories/entities"
	"github.com/pasturelabs/herdsync/internal/client/repositories/locks"
	"github.com/pasturelabs/herdsync/internal/client/repositories/metadata"
	"github.com/pasturelabs/herdsync/internal/client/repositories/tombstones"
	"github.com/pressly/goose/v3"
)

// Repositories bundles the engine's local storage handles.
type Repositories struct {
	DB         *sql.DB
	Entities   entities.Repository
	Tombstones tombstones.Repository
	Audit      audit.Repository
	Locks      locks.Repository
	Metadata   metadata.Repository
}

// RunMigrations applies the embedded SQLite migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return goose.UpContext(ctx, db, ".")
}

// InitDatabase opens the local database, migrates it, and returns the
// repository set. The caller must have registered an sqlite driver
// (modernc.org/sqlite).
func InitDatabase(ctx context.Context, dsn string) (*Repositories, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open local database: %w", err)
	}

	if err := RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Repositories{
		DB:         db,
		Entities:   entities.NewSQLiteRepository(db),
		Tombstones: tombstones.NewSQLiteRepository(db),
		Audit:      audit.NewSQLiteRepository(db),
		Locks:      locks.NewSQLiteRepository(db),
		Metadata:   metadata.NewSQLiteRepository(db),
	}, nil
}
