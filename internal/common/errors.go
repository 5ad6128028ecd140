// Package common defines shared sentinel and typed errors used across the
// client engine and the server. Callers match them with errors.Is/errors.As.
package common

import (
	"fmt"
	"time"
)

var (
	// Repository-level errors.
	ErrNotFound     = fmt.Errorf("not found")
	ErrDuplicateKey = fmt.Errorf("duplicate key")

	// Sync-level errors.
	ErrSyncInProgress = fmt.Errorf("sync already in progress")

	// Auth errors.
	ErrInvalidToken = fmt.Errorf("invalid token")
	ErrUnauthorized = fmt.Errorf("unauthorized")
)

// ValidationError reports a business-rule violation at mutation time.
// It is surfaced to the caller synchronously and never retried.
type ValidationError struct {
	Entity string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Entity, e.Reason)
}

// LockHeldError reports that an unexpired edit lock is held by someone else.
type LockHeldError struct {
	EntityID  string
	Holder    string
	ExpiresAt time.Time
}

func (e *LockHeldError) Error() string {
	return fmt.Sprintf("entity %s is locked by %s until %s",
		e.EntityID, e.Holder, e.ExpiresAt.Format(time.RFC3339))
}

// TransportError wraps a network or remote-store failure during push or pull.
// Records affected by it stay unsynced and are retried on the next cycle.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("sync transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
