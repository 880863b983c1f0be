package migrations

import "embed"

// FS contains embedded migrations, one directory per SQL dialect.
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
