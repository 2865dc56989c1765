package db

import "embed"

// MigrationsFS holds the schema migrations shipped with the server binary.
//
//go:embed migrations/*.sql
var MigrationsFS embed.FS
