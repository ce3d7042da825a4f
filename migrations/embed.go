// Package migrations compiles the schema SQL into the binary, so a
// deployed meshboard needs no migration files on disk.
package migrations

import (
	"embed"

	"github.com/meshboard/meshboard-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

// Hand the embedded files to the database package. The .sql files sit
// at the root of the embedded FS.
func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
