package db

import "embed"

// MigrationFS holds the SQL migrations applied by cmd/mfmc-migrate and by
// the Postgres integration tests.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
