package models

import (
	"encoding/json"
	"time"
)

// AuditAction classifies an audit entry.
type AuditAction string

const (
	AuditCreate  AuditAction = "create"
	AuditUpdate  AuditAction = "update"
	AuditDelete  AuditAction = "delete"
	AuditRestore AuditAction = "restore"
)

// AuditEntry is one append-only journal row. Entries are written in the same
// transaction as the mutation they describe and are never updated or removed.
type AuditEntry struct {
	ID       int64
	Entity   string
	EntityID string
	Action   AuditAction
	// Before and After are full record snapshots; Before is nil for
	// creates, After is nil for deletes.
	Before    json.RawMessage
	After     json.RawMessage
	Actor     string
	Timestamp time.Time
}
