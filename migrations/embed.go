// Package migrations embeds the push server's SQL schema into the binary.
package migrations

import (
	"embed"

	"github.com/h-mdm/hmdm-server-sub001/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "." // files sit at the root of the embedded FS
}
