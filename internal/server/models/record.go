// Package models defines the server-side shapes of synchronized records and
// user accounts.
package models

import (
	"encoding/json"
	"time"
)

// Record is one authoritative row of a synchronized table.
type Record struct {
	// RemoteID is assigned by the database on first insert and is the
	// stable identifier replicas reference after their first push.
	RemoteID int64
	// UUID is the client-generated id of the replica that created the row.
	UUID       string
	Scope      string
	NaturalKey string
	Payload    json.RawMessage
	// UpdatedAt is the client-asserted mutation time used for
	// last-writer-wins resolution.
	UpdatedAt time.Time
	// ServerUpdatedAt advances on every server-side write and drives the
	// changes-since feed.
	ServerUpdatedAt time.Time
	Deleted         bool
}
