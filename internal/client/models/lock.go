package models

import "time"

// Lock is an advisory, TTL-bound edit lock on a single entity. It protects
// concurrent editors in the same process from clobbering each other; it is
// not a distributed lock and gives no guarantees against the server.
type Lock struct {
	EntityID   string
	Holder     string
	Token      string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the lock no longer protects its entity.
func (l *Lock) Expired(now time.Time) bool {
	return !l.ExpiresAt.After(now)
}
