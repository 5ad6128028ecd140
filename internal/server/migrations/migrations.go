// Package migrations embeds the Postgres schema migrations for the remote
// store.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
