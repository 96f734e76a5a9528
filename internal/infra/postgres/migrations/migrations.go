package migrations

import "github.com/uptrace/bun/migrate"

// Migrations holds every schema migration of the service, registered by the files below.
var Migrations = migrate.NewMigrations()
