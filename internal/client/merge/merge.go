// Package merge collapses duplicate representations of one logical entity
// into a single view on the read path. Duplicates appear transiently when a
// locally created row and its remote-confirmed counterpart coexist under
// different local ids after a partial sync.
//
// Dedup is deterministic and idempotent; it never touches the store.
// Persistent cleanup of superseded rows is a separate housekeeping step the
// sync orchestrator runs after a clean cycle.
package merge

import "github.com/pasturelabs/herdsync/internal/client/models"

// Dedup returns the surviving records in first-appearance order.
//
// Pass one keys by id: of two records sharing an id, the one with a non-nil
// RemoteID wins, then the greater UpdatedAt. Pass two keys by RemoteID
// (nil skipped): of two records sharing a RemoteID under different ids, the
// greater UpdatedAt wins and the superseded record is dropped entirely.
func Dedup(records []models.Record) []models.Record {
	kept, _ := dedup(records)
	return kept
}

// Superseded returns the records Dedup would drop, for housekeeping.
func Superseded(records []models.Record) []models.Record {
	_, dropped := dedup(records)
	return dropped
}

func dedup(records []models.Record) (kept, dropped []models.Record) {
	byID := make(map[string]int, len(records))      // id -> index into order
	order := make([]*models.Record, 0, len(records))
	var losers []models.Record

	for i := range records {
		rec := records[i]
		j, ok := byID[rec.ID]
		if !ok {
			byID[rec.ID] = len(order)
			order = append(order, &rec)
			continue
		}
		if preferred(&rec, order[j]) {
			losers = append(losers, *order[j])
			order[j] = &rec
		} else {
			losers = append(losers, rec)
		}
	}

	byRemote := make(map[int64]int, len(order))
	for j, rec := range order {
		if rec == nil || rec.RemoteID == nil {
			continue
		}
		k, ok := byRemote[*rec.RemoteID]
		if !ok {
			byRemote[*rec.RemoteID] = j
			continue
		}
		// Same remote row under two local ids: newest state wins, the
		// superseded row disappears from the result despite its distinct id.
		if rec.UpdatedAt.After(order[k].UpdatedAt) {
			losers = append(losers, *order[k])
			order[k] = nil
			byRemote[*rec.RemoteID] = j
		} else {
			losers = append(losers, *rec)
			order[j] = nil
		}
	}

	for _, rec := range order {
		if rec != nil {
			kept = append(kept, *rec)
		}
	}
	return kept, losers
}

// preferred reports whether a should replace b when both carry the same id.
func preferred(a, b *models.Record) bool {
	if (a.RemoteID != nil) != (b.RemoteID != nil) {
		return a.RemoteID != nil
	}
	return a.UpdatedAt.After(b.UpdatedAt)
}
