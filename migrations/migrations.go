// Package migrations embeds the PostgreSQL schema migrations so the migrate
// command and the test helpers apply the same files.
package migrations

import "embed"

// FS holds every *.up.sql and *.down.sql migration.
//
//go:embed *.sql
var FS embed.FS
