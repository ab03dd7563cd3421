// Package migrations embeds the Perimeter schema migrations into the binary.
package migrations

import (
	"embed"

	"github.com/nerrad567/perimeter-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
