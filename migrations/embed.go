// Package migrations embeds the dashsync SQL schema into the binary.
package migrations

import "embed"

// FS holds every *.sql file in this directory. Pass it to
// database.DB.Migrate.
//
//go:embed *.sql
var FS embed.FS
