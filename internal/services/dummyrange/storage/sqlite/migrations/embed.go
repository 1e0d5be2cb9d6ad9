package migrations

import "embed"

// FS contains embedded SQLite migrations for dummyrange storage.
//
//go:embed *.sql
var FS embed.FS
