package db

import "embed"

// MigrationFS holds the SQL migrations applied by cmd/migrate and, with -migrate, by cmd/server.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
