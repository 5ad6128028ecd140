// Package audit persists the append-only mutation journal. Entries are
// written in the same transaction as the mutation they describe; nothing in
// this package ever updates or deletes a row.
package audit

import (
	"context"

	"github.com/pasturelabs/herdsync/internal/client/models"
)

// Repository describes the audit journal.
type Repository interface {
	// Append adds one entry and fills in its assigned ID.
	Append(ctx context.Context, e *models.AuditEntry) error

	// History returns all entries for one entity ordered by timestamp
	// ascending (entry id breaks ties, preserving call order).
	History(ctx context.Context, entity, entityID string) ([]models.AuditEntry, error)

	// Get returns a single entry by its ID.
	Get(ctx context.Context, id int64) (*models.AuditEntry, error)
}
