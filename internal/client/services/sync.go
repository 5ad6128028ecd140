package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pasturelabs/herdsync/internal/client/client"
	"github.com/pasturelabs/herdsync/internal/client/merge"
	"github.com/pasturelabs/herdsync/internal/client/models"
	"github.com/pasturelabs/herdsync/internal/client/repositories/entities"
	"github.com/pasturelabs/herdsync/internal/client/repositories/metadata"
	"github.com/pasturelabs/herdsync/internal/common"
	"github.com/pasturelabs/herdsync/internal/dbx"
	"github.com/pasturelabs/herdsync/internal/logging"
)

// DefaultTombstoneRetention is how long confirmed tombstones are kept before
// housekeeping prunes them.
const DefaultTombstoneRetention = 30 * 24 * time.Hour

// TombstoneArchiver receives pruned tombstone batches before they are
// removed. When archiving fails, nothing is pruned.
type TombstoneArchiver interface {
	ArchiveTombstones(ctx context.Context, batch []models.Tombstone) (string, error)
}

// Result summarizes one sync cycle. Ran is false when another cycle was
// already in flight and this call was a no-op.
type Result struct {
	Ran     bool
	Pushed  int
	Deleted int
	Pulled  int
	Errors  int
}

// SyncService coordinates push of pending local mutations and pull of remote
// changes. At most one cycle runs at a time; a concurrent request is a no-op
// reporting ErrSyncInProgress. Retry needs no queue of its own: anything
// still flagged synced=false is simply picked up by the next cycle.
type SyncService struct {
	repos     *client.Repositories
	remote    client.Client
	logger    logging.Logger
	archiver  TombstoneArchiver
	retention time.Duration
	now       func() time.Time

	running atomic.Bool

	mu      sync.Mutex
	subs    map[int]func(bool)
	nextSub int
}

func NewSyncService(repos *client.Repositories, remote client.Client, logger logging.Logger) *SyncService {
	return &SyncService{
		repos:     repos,
		remote:    remote,
		logger:    logger,
		retention: DefaultTombstoneRetention,
		now:       time.Now,
		subs:      make(map[int]func(bool)),
	}
}

// WithArchiver routes pruned tombstone batches through a before delete.
func (s *SyncService) WithArchiver(a TombstoneArchiver) *SyncService {
	s.archiver = a
	return s
}

// Subscribe registers an observer of the syncing flag and returns its
// unsubscribe function. Delivery is advisory: at-least-once per transition,
// and rapid transitions may coalesce at the observer.
func (s *SyncService) Subscribe(fn func(syncing bool)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *SyncService) notify(syncing bool) {
	s.mu.Lock()
	fns := make([]func(bool), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(syncing)
	}
}

// Syncing reports whether a cycle is currently running.
func (s *SyncService) Syncing() bool { return s.running.Load() }

// SyncNow runs one push-then-pull cycle. A failure on one entity type never
// aborts the others; affected records stay unsynced and retry next cycle.
func (s *SyncService) SyncNow(ctx context.Context) (Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		return Result{Ran: false}, common.ErrSyncInProgress
	}
	defer s.running.Store(false)

	s.notify(true)
	defer s.notify(false)

	res := Result{Ran: true}
	s.logger.Info(ctx, "sync cycle started")

	for _, typ := range models.Types() {
		if err := s.pushType(ctx, typ, &res); err != nil {
			res.Errors++
			s.logger.Warn(ctx, "push failed", "entity", typ.Name, "error", err)
		}
	}

	if err := s.pushTombstones(ctx, &res); err != nil {
		res.Errors++
		s.logger.Warn(ctx, "tombstone push failed", "error", err)
	}

	for _, typ := range models.Types() {
		if err := s.pullType(ctx, typ, &res); err != nil {
			res.Errors++
			s.logger.Warn(ctx, "pull failed", "entity", typ.Name, "error", err)
		}
	}

	if res.Errors == 0 {
		s.housekeep(ctx)
	}

	s.logger.Info(ctx, "sync cycle finished",
		"pushed", res.Pushed, "deleted", res.Deleted, "pulled", res.Pulled, "errors", res.Errors)
	return res, nil
}

// Run executes cycles on a fixed interval until ctx ends.
func (s *SyncService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SyncNow(ctx); err != nil && !errors.Is(err, common.ErrSyncInProgress) {
				s.logger.Error(ctx, "scheduled sync failed", "error", err)
			}
		}
	}
}

// pushType sends every unsynced record of one type. On first acceptance of a
// record without a remote id, the returned id is recorded and the record
// marked synced in one transaction.
func (s *SyncService) pushType(ctx context.Context, typ models.EntityType, res *Result) error {
	recs, err := s.repos.Entities.ListUnsynced(ctx, typ)
	if err != nil {
		return err
	}
	for i := range recs {
		rec := &recs[i]
		remoteID, err := s.remote.Upsert(ctx, typ.Name, toWire(rec))
		if err != nil {
			var ve *common.ValidationError
			if errors.As(err, &ve) {
				// First writer won on the server. The local record stays
				// unsynced for the operator to resolve; it must not block
				// the rest of the queue.
				res.Errors++
				s.logger.Warn(ctx, "remote rejected record",
					"entity", typ.Name, "id", rec.ID, "reason", ve.Reason)
				continue
			}
			return err
		}
		err = dbx.WithTx(ctx, s.repos.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
			return entities.NewSQLiteRepository(tx).MarkSynced(ctx, typ, rec.ID, remoteID, rec.UpdatedAt)
		})
		if err != nil {
			return err
		}
		res.Pushed++
	}
	return nil
}

// pushTombstones resolves pending deletions. A tombstone without a remote id
// never reached the server and is confirmed without a network call; the rest
// are sent as remote deletes and confirmed only on acknowledgement.
func (s *SyncService) pushTombstones(ctx context.Context, res *Result) error {
	pending, err := s.repos.Tombstones.ListPending(ctx)
	if err != nil {
		return err
	}
	for _, ts := range pending {
		if ts.RemoteID != nil {
			err := s.remote.Delete(ctx, ts.Entity, *ts.RemoteID)
			if err != nil && !errors.Is(err, common.ErrNotFound) {
				return err
			}
		}
		if err := s.repos.Tombstones.MarkSynced(ctx, ts.ID); err != nil {
			return err
		}
		res.Deleted++
	}
	return nil
}

// pullType fetches remote changes since the stored per-type cursor and
// applies them locally by remote id.
func (s *SyncService) pullType(ctx context.Context, typ models.EntityType, res *Result) error {
	since, err := s.cursor(ctx, typ)
	if err != nil {
		return err
	}
	changes, err := s.remote.Changes(ctx, typ.Name, since)
	if err != nil {
		return err
	}

	maxSeen := since
	for _, wr := range changes {
		err := dbx.WithTx(ctx, s.repos.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
			return s.applyRemote(ctx, tx, typ, wr)
		})
		if err != nil {
			return err
		}
		if wr.ServerUpdatedAt.After(maxSeen) {
			maxSeen = wr.ServerUpdatedAt
		}
		res.Pulled++
	}
	if maxSeen.After(since) {
		return s.setCursor(ctx, typ, maxSeen)
	}
	return nil
}

// applyRemote upserts one remote change. Matching prefers the remote id,
// then the record's own uuid; with no local counterpart a fresh row is
// created. Last-writer-wins by updatedAt: a newer local state is kept
// instead of being overwritten, and that covers deletion markers too.
func (s *SyncService) applyRemote(ctx context.Context, tx dbx.DBTX, typ models.EntityType, wr client.WireRecord) error {
	repo := entities.NewSQLiteRepository(tx)

	var local *models.Record
	if wr.RemoteID != nil {
		rec, err := repo.GetByRemoteID(ctx, typ, *wr.RemoteID)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return err
		}
		local = rec
	}
	if local == nil && wr.UUID != "" {
		rec, err := repo.Get(ctx, typ, wr.UUID)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return err
		}
		local = rec
	}

	if local != nil {
		if local.RemoteID != nil && wr.RemoteID != nil && *local.RemoteID != *wr.RemoteID {
			// A remote id is never reassigned to a different local record.
			s.logger.Warn(ctx, "remote id mismatch, change skipped",
				"entity", typ.Name, "id", local.ID)
			return nil
		}
		if local.UpdatedAt.After(wr.UpdatedAt) {
			// Local state is newer; if it is unsynced the next push sends it.
			// A stale deletion marker loses here like any other stale write.
			return nil
		}
	}

	if wr.Deleted {
		if local == nil {
			return nil
		}
		if typ.Delete == models.SoftDelete {
			deletedAt := wr.UpdatedAt
			local.DeletedAt = &deletedAt
			if wr.UpdatedAt.After(local.UpdatedAt) {
				local.UpdatedAt = wr.UpdatedAt
			}
			local.Synced = true
			return repo.Update(ctx, typ, local)
		}
		// The deletion originated remotely, so no tombstone is needed.
		return repo.DeleteRow(ctx, typ, local.ID)
	}

	if local == nil {
		id := wr.UUID
		if id == "" {
			id = uuid.NewString()
		}
		rec := &models.Record{
			ID:         id,
			RemoteID:   wr.RemoteID,
			Synced:     true,
			CreatedAt:  wr.UpdatedAt,
			UpdatedAt:  wr.UpdatedAt,
			Scope:      wr.Scope,
			NaturalKey: wr.NaturalKey,
			Data:       wr.Data,
		}
		err := repo.Insert(ctx, typ, rec)
		if errors.Is(err, common.ErrDuplicateKey) {
			// A local unsynced create holds the same natural key. The
			// server already took the first writer; the local duplicate
			// surfaces as a validation conflict on its own push.
			s.logger.Warn(ctx, "remote record conflicts with local duplicate",
				"entity", typ.Name, "key", wr.NaturalKey)
			return nil
		}
		return err
	}

	local.RemoteID = wr.RemoteID
	local.Scope = wr.Scope
	local.NaturalKey = wr.NaturalKey
	local.Data = wr.Data
	local.DeletedAt = nil
	if wr.UpdatedAt.After(local.UpdatedAt) {
		local.UpdatedAt = wr.UpdatedAt
	}
	local.Synced = true
	return repo.Update(ctx, typ, local)
}

// housekeep runs best-effort cleanup after a fully clean cycle: superseded
// duplicate rows are removed, and confirmed tombstones past retention are
// archived and pruned.
func (s *SyncService) housekeep(ctx context.Context) {
	for _, typ := range models.Types() {
		rows, err := s.repos.Entities.List(ctx, typ, true)
		if err != nil {
			s.logger.Warn(ctx, "housekeeping list failed", "entity", typ.Name, "error", err)
			continue
		}
		for _, loser := range merge.Superseded(rows) {
			if err := s.repos.Entities.DeleteRow(ctx, typ, loser.ID); err != nil {
				s.logger.Warn(ctx, "duplicate cleanup failed",
					"entity", typ.Name, "id", loser.ID, "error", err)
			}
		}
	}

	cutoff := s.now().UTC().Add(-s.retention)
	batch, err := s.repos.Tombstones.ListPrunable(ctx, cutoff)
	if err != nil || len(batch) == 0 {
		if err != nil {
			s.logger.Warn(ctx, "tombstone prune scan failed", "error", err)
		}
		return
	}
	if s.archiver != nil {
		key, err := s.archiver.ArchiveTombstones(ctx, batch)
		if err != nil {
			s.logger.Warn(ctx, "tombstone archive failed, prune skipped", "error", err)
			return
		}
		s.logger.Info(ctx, "archived tombstones", "count", len(batch), "key", key)
	}
	n, err := s.repos.Tombstones.Prune(ctx, cutoff)
	if err != nil {
		s.logger.Warn(ctx, "tombstone prune failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info(ctx, "pruned tombstones", "count", n)
	}

	stamp := s.now().UTC().Format(time.RFC3339Nano)
	if err := s.repos.Metadata.Set(ctx, metadata.KeyLastCleanSyncAt, []byte(stamp)); err != nil {
		s.logger.Warn(ctx, "failed to record clean sync time", "error", err)
	}
}

func (s *SyncService) cursor(ctx context.Context, typ models.EntityType) (time.Time, error) {
	raw, err := s.repos.Metadata.Get(ctx, metadata.KeyLastSyncPrefix+typ.Name)
	if err != nil {
		return time.Time{}, err
	}
	if raw == nil {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

func (s *SyncService) setCursor(ctx context.Context, typ models.EntityType, t time.Time) error {
	return s.repos.Metadata.Set(ctx, metadata.KeyLastSyncPrefix+typ.Name,
		[]byte(t.UTC().Format(time.RFC3339Nano)))
}

func toWire(rec *models.Record) client.WireRecord {
	return client.WireRecord{
		UUID:       rec.ID,
		RemoteID:   rec.RemoteID,
		UpdatedAt:  rec.UpdatedAt,
		Deleted:    rec.DeletedAt != nil,
		Scope:      rec.Scope,
		NaturalKey: rec.NaturalKey,
		Data:       rec.Data,
	}
}
