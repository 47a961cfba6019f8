package notifications

import (
	"embed"

	"github.com/taskpulse/project/internal/platform/database"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var Migrations = database.Migration{
	FS:           migrationsFS,
	Dir:          "migrations",
	VersionTable: "notifications_goose_db_version",
}
