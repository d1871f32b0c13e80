package migrations

import "embed"

// FS holds the SQL schema migrations applied by `voyage migrate`.
//
//go:embed *.sql
var FS embed.FS
