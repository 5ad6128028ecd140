// Package metadata is a small key/value store for engine bookkeeping such as
// per-type pull cursors and the device identity.
package metadata

import "context"

// Well-known keys.
const (
	KeyDeviceID        = "device_id"
	KeyLastSyncPrefix  = "last_sync_" // + entity type name
	KeyLastCleanSyncAt = "last_clean_sync_at"
)

type Repository interface {
	// Get returns the value for key, or nil when the key is unknown.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
