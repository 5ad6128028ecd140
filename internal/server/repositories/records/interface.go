// Package records implements the authoritative synchronized tables.
package records

import (
	"context"
	"fmt"
	"time"

	"github.com/pasturelabs/herdsync/internal/server/models"
)

// tables maps wire entity names to their Postgres tables. Table names come
// from this registry only.
var tables = map[string]string{
	"farm":    "farms",
	"animal":  "animals",
	"birth":   "births",
	"weaning": "weanings",
	"tag":     "tags",
	"grant":   "grants",
}

// TableFor resolves the table of a wire entity name.
func TableFor(entity string) (string, error) {
	t, ok := tables[entity]
	if !ok {
		return "", fmt.Errorf("unknown entity type %q", entity)
	}
	return t, nil
}

// Repository describes the server-side record store.
type Repository interface {
	// Upsert applies upsert-by-uuid-or-create with last-writer-wins by
	// UpdatedAt and returns the row's remote id. A natural-key collision
	// with a different uuid returns common.ErrDuplicateKey.
	Upsert(ctx context.Context, entity string, rec *models.Record) (int64, error)

	// Delete marks a row deleted. Unknown ids return common.ErrNotFound.
	Delete(ctx context.Context, entity string, remoteID int64) error

	// Changes returns rows whose server-side update time is after since,
	// deletions included, ordered by server update time.
	Changes(ctx context.Context, entity string, since time.Time) ([]models.Record, error)
}
