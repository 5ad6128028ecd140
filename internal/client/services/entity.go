// Package services composes the repositories into the engine's public
// operations: entity mutations with paired audit writes, edit locking, and
// the sync orchestrator.
package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pasturelabs/herdsync/internal/client/merge"
	"github.com/pasturelabs/herdsync/internal/client/models"
	"github.com/pasturelabs/herdsync/internal/client/repositories/audit"
	"github.com/pasturelabs/herdsync/internal/client/repositories/entities"
	"github.com/pasturelabs/herdsync/internal/client/repositories/tombstones"
	"github.com/pasturelabs/herdsync/internal/common"
	"github.com/pasturelabs/herdsync/internal/dbx"
	"github.com/pasturelabs/herdsync/internal/logging"
)

// Patch describes a partial update. Nil fields are left untouched; Data is
// merged key-by-key into the record's existing payload.
type Patch struct {
	Scope      *string
	NaturalKey *string
	Data       json.RawMessage
}

// EntityService owns every entity mutation. Each mutation and its audit
// entry run inside one local transaction, so data and audit cannot diverge.
type EntityService struct {
	db     *sql.DB
	logger logging.Logger
	now    func() time.Time
}

func NewEntityService(db *sql.DB, logger logging.Logger) *EntityService {
	return &EntityService{db: db, logger: logger, now: time.Now}
}

// nextUpdatedAt returns a timestamp strictly after prev. The merge tie-break
// relies on updatedAt never repeating within one record's history.
func (s *EntityService) nextUpdatedAt(prev time.Time) time.Time {
	t := s.now().UTC()
	if !t.After(prev) {
		t = prev.Add(time.Millisecond)
	}
	return t
}

// Create stores a new record, assigning its id and timestamps. The record
// starts unsynced with no remote id.
func (s *EntityService) Create(ctx context.Context, typ models.EntityType, rec *models.Record, actor string) error {
	if rec.Data != nil && !json.Valid(rec.Data) {
		return &common.ValidationError{Entity: typ.Name, Reason: "payload is not valid JSON"}
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Data == nil {
		rec.Data = json.RawMessage("{}")
	}
	now := s.now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	rec.Synced = false
	rec.RemoteID = nil
	rec.DeletedAt = nil

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := entities.NewSQLiteRepository(tx).Insert(ctx, typ, rec); err != nil {
			return err
		}
		return s.appendAudit(ctx, tx, typ, rec.ID, models.AuditCreate, nil, rec, actor)
	})
	if errors.Is(err, common.ErrDuplicateKey) {
		return &common.ValidationError{
			Entity: typ.Name,
			Reason: fmt.Sprintf("an active %s with key %q already exists in this scope", typ.Name, rec.NaturalKey),
		}
	}
	return err
}

// Update merges a patch into an existing record, advances updatedAt and
// flips synced back to false.
func (s *EntityService) Update(ctx context.Context, typ models.EntityType, id string, patch Patch, actor string) (*models.Record, error) {
	if patch.Data != nil && !json.Valid(patch.Data) {
		return nil, &common.ValidationError{Entity: typ.Name, Reason: "patch payload is not valid JSON"}
	}

	var updated *models.Record
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := entities.NewSQLiteRepository(tx)
		current, err := repo.Get(ctx, typ, id)
		if err != nil {
			return err
		}
		before := current.Clone()

		if patch.Scope != nil {
			current.Scope = *patch.Scope
		}
		if patch.NaturalKey != nil {
			current.NaturalKey = *patch.NaturalKey
		}
		if patch.Data != nil {
			merged, err := mergeJSON(current.Data, patch.Data)
			if err != nil {
				return &common.ValidationError{Entity: typ.Name, Reason: err.Error()}
			}
			current.Data = merged
		}
		current.UpdatedAt = s.nextUpdatedAt(before.UpdatedAt)
		current.Synced = false

		if err := repo.Update(ctx, typ, current); err != nil {
			return err
		}
		updated = current
		return s.appendAudit(ctx, tx, typ, id, models.AuditUpdate, before, current, actor)
	})
	if errors.Is(err, common.ErrDuplicateKey) {
		return nil, &common.ValidationError{
			Entity: typ.Name,
			Reason: "an active record with that key already exists in this scope",
		}
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a record using the type's strategy: soft-delete types get a
// deletedAt stamp and stay in sync history; hard-delete types lose their row
// and leave a tombstone carrying the last known remote id.
func (s *EntityService) Delete(ctx context.Context, typ models.EntityType, id string, actor string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := entities.NewSQLiteRepository(tx)
		current, err := repo.Get(ctx, typ, id)
		if err != nil {
			return err
		}
		before := current.Clone()
		now := s.now().UTC()

		switch typ.Delete {
		case models.SoftDelete:
			deletedAt := now
			current.DeletedAt = &deletedAt
			current.UpdatedAt = s.nextUpdatedAt(before.UpdatedAt)
			current.Synced = false
			if err := repo.Update(ctx, typ, current); err != nil {
				return err
			}
		case models.HardDelete:
			if err := repo.DeleteRow(ctx, typ, id); err != nil {
				return err
			}
			ts := &models.Tombstone{
				Entity:    typ.Name,
				UUID:      id,
				RemoteID:  current.RemoteID,
				DeletedAt: now,
				Synced:    false,
			}
			if err := tombstones.NewSQLiteRepository(tx).Record(ctx, ts); err != nil {
				return err
			}
		}
		return s.appendAudit(ctx, tx, typ, id, models.AuditDelete, before, nil, actor)
	})
}

// Get returns one record by id. Soft-deleted rows are returned as-is;
// callers check Deleted().
func (s *EntityService) Get(ctx context.Context, typ models.EntityType, id string) (*models.Record, error) {
	return entities.NewSQLiteRepository(s.db).Get(ctx, typ, id)
}

// Query returns the active records of a type, reconciled through the dedup
// merge so duplicate replicas never reach the caller, filtered by pred.
// A nil pred returns everything.
func (s *EntityService) Query(ctx context.Context, typ models.EntityType, pred func(*models.Record) bool) ([]models.Record, error) {
	rows, err := entities.NewSQLiteRepository(s.db).List(ctx, typ, false)
	if err != nil {
		return nil, err
	}
	deduped := merge.Dedup(rows)
	if pred == nil {
		return deduped, nil
	}
	result := deduped[:0]
	for i := range deduped {
		if pred(&deduped[i]) {
			result = append(result, deduped[i])
		}
	}
	return result, nil
}

// PendingCount reports how many local changes still await the remote store:
// unsynced records across all types plus unconfirmed tombstones.
func (s *EntityService) PendingCount(ctx context.Context) (int, error) {
	repo := entities.NewSQLiteRepository(s.db)
	total := 0
	for _, typ := range models.Types() {
		n, err := repo.CountUnsynced(ctx, typ)
		if err != nil {
			return 0, err
		}
		total += n
	}
	n, err := tombstones.NewSQLiteRepository(s.db).CountPending(ctx)
	if err != nil {
		return 0, err
	}
	return total + n, nil
}

// History returns the audit trail of one entity, oldest first.
func (s *EntityService) History(ctx context.Context, typ models.EntityType, id string) ([]models.AuditEntry, error) {
	return audit.NewSQLiteRepository(s.db).History(ctx, typ.Name, id)
}

// Restore re-applies the snapshot held by an audit entry as a fresh update.
// History is never rewritten: the restore itself lands as one more entry.
// Restoring a deleted entity recreates its row; the recreated record starts
// unsynced with no remote id, since the remote-side row may already be gone.
func (s *EntityService) Restore(ctx context.Context, typ models.EntityType, id string, entryID int64, actor string) (*models.Record, error) {
	var restored *models.Record
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		entry, err := audit.NewSQLiteRepository(tx).Get(ctx, entryID)
		if err != nil {
			return err
		}
		if entry.Entity != typ.Name || entry.EntityID != id {
			return &common.ValidationError{Entity: typ.Name, Reason: "audit entry does not belong to this entity"}
		}
		snap := entry.Before
		if snap == nil {
			// Restoring to a create entry: the "before" of a create is
			// nothing, so the target state is its "after".
			snap = entry.After
		}
		if snap == nil {
			return &common.ValidationError{Entity: typ.Name, Reason: "audit entry carries no snapshot"}
		}
		var target models.Record
		if err := json.Unmarshal(snap, &target); err != nil {
			return fmt.Errorf("failed to decode snapshot: %w", err)
		}

		repo := entities.NewSQLiteRepository(tx)
		current, err := repo.Get(ctx, typ, id)
		switch {
		case err == nil:
			before := current.Clone()
			current.Scope = target.Scope
			current.NaturalKey = target.NaturalKey
			current.Data = target.Data
			current.DeletedAt = target.DeletedAt
			current.UpdatedAt = s.nextUpdatedAt(before.UpdatedAt)
			current.Synced = false
			if err := repo.Update(ctx, typ, current); err != nil {
				return err
			}
			restored = current
			return s.appendAudit(ctx, tx, typ, id, models.AuditRestore, before, current, actor)
		case errors.Is(err, common.ErrNotFound):
			rec := target.Clone()
			rec.RemoteID = nil
			rec.Synced = false
			rec.DeletedAt = nil
			rec.UpdatedAt = s.now().UTC()
			if err := repo.Insert(ctx, typ, rec); err != nil {
				return err
			}
			restored = rec
			return s.appendAudit(ctx, tx, typ, id, models.AuditRestore, nil, rec, actor)
		default:
			return err
		}
	})
	if errors.Is(err, common.ErrDuplicateKey) {
		return nil, &common.ValidationError{
			Entity: typ.Name,
			Reason: "restoring would collide with an active record of the same key",
		}
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "restored entity from audit entry",
		"entity", typ.Name, "id", id, "entry", entryID)
	return restored, nil
}

func (s *EntityService) appendAudit(ctx context.Context, tx dbx.DBTX, typ models.EntityType, id string, action models.AuditAction, before, after *models.Record, actor string) error {
	entry := &models.AuditEntry{
		Entity:    typ.Name,
		EntityID:  id,
		Action:    action,
		Actor:     actor,
		Timestamp: s.now().UTC(),
	}
	var err error
	if before != nil {
		if entry.Before, err = before.Snapshot(); err != nil {
			return fmt.Errorf("failed to snapshot before state: %w", err)
		}
	}
	if after != nil {
		if entry.After, err = after.Snapshot(); err != nil {
			return fmt.Errorf("failed to snapshot after state: %w", err)
		}
	}
	return audit.NewSQLiteRepository(tx).Append(ctx, entry)
}

// mergeJSON overlays the keys of patch onto base. Both must be JSON objects.
func mergeJSON(base, patch json.RawMessage) (json.RawMessage, error) {
	merged := map[string]any{}
	if len(base) > 0 {
		if err := json.Unmarshal(base, &merged); err != nil {
			return nil, fmt.Errorf("existing payload is not an object: %w", err)
		}
	}
	overlay := map[string]any{}
	if err := json.Unmarshal(patch, &overlay); err != nil {
		return nil, fmt.Errorf("patch is not an object: %w", err)
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return json.Marshal(merged)
}
