package models

import "time"

// Tombstone is the durable proof that a hard-deleted entity must be deleted
// remotely too. It is written in the same transaction that removes the row.
type Tombstone struct {
	// ID is the tombstone's own local identifier.
	ID int64
	// Entity is the wire name of the deleted record's type.
	Entity string
	// UUID is the deleted record's local ID.
	UUID string
	// RemoteID is the deleted record's remote ID at deletion time. Nil
	// means the record never reached the remote store, in which case the
	// tombstone resolves without a network call.
	RemoteID  *int64
	DeletedAt time.Time
	Synced    bool
}
