// Package client talks to the authoritative remote store and bootstraps the
// local database the engine runs on.
package client

import (
	"context"
	"encoding/json"
	"time"
)

// WireRecord is the sync representation of a record exchanged with the
// remote store.
type WireRecord struct {
	UUID     string `json:"uuid"`
	RemoteID *int64 `json:"remote_id,omitempty"`
	// UpdatedAt is the client-asserted mutation time used for
	// last-writer-wins resolution.
	UpdatedAt time.Time `json:"updated_at"`
	// ServerUpdatedAt is filled on pulled records and advances the
	// changes-since cursor.
	ServerUpdatedAt time.Time       `json:"server_updated_at,omitzero"`
	Deleted         bool            `json:"deleted"`
	Scope           string          `json:"scope"`
	NaturalKey      string          `json:"natural_key"`
	Data            json.RawMessage `json:"data"`
}

// Client is the remote store contract the sync orchestrator relies on.
//
// Upsert is upsert-by-remoteId-or-create and returns the assigned remote id.
// Changes returns records whose server-side update time is after since,
// including server-side deletions as Deleted markers.
type Client interface {
	Login(ctx context.Context, username, password string) error
	Ping(ctx context.Context) error
	Upsert(ctx context.Context, entity string, rec WireRecord) (int64, error)
	Delete(ctx context.Context, entity string, remoteID int64) error
	Changes(ctx context.Context, entity string, since time.Time) ([]WireRecord, error)
	Close() error
}
