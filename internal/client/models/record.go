package models

import (
	"encoding/json"
	"time"
)

// Record is one synchronized row of any entity type.
//
// ID is client-generated (UUIDv4), assigned at creation and never reused;
// it is the only identifier safe to reference before the first sync.
// RemoteID is assigned by the remote store on first successful push and,
// once set, is never reassigned to a different local ID.
type Record struct {
	ID        string
	RemoteID  *int64
	Synced    bool
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time

	// Scope is the parent scope of the natural key, e.g. the farm a
	// tag number is unique within. Empty means global scope.
	Scope string
	// NaturalKey is the business key used for de-duplication; an active
	// record's (Scope, NaturalKey) pair is unique. Empty disables the check.
	NaturalKey string
	// Data holds the type-specific domain fields as JSON.
	Data json.RawMessage
}

// Deleted reports whether the record is hidden by a soft delete.
func (r *Record) Deleted() bool { return r.DeletedAt != nil }

// Clone returns a deep copy, so callers can keep before/after snapshots
// without sharing the Data slice.
func (r *Record) Clone() *Record {
	c := *r
	if r.RemoteID != nil {
		v := *r.RemoteID
		c.RemoteID = &v
	}
	if r.DeletedAt != nil {
		v := *r.DeletedAt
		c.DeletedAt = &v
	}
	if r.Data != nil {
		c.Data = make(json.RawMessage, len(r.Data))
		copy(c.Data, r.Data)
	}
	return &c
}

// Snapshot marshals the record for storage in an audit entry.
func (r *Record) Snapshot() (json.RawMessage, error) {
	return json.Marshal(r)
}
