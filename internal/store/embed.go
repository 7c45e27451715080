package store

import "embed"

// migrationsFS embeds the schema migrations so deployed binaries never
// depend on a migrations directory on disk.
//
//go:embed migrations/*.sql
var migrationsFS embed.FS
