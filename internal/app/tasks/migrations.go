package tasks

import (
	"embed"

	"github.com/taskpulse/project/internal/platform/database"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrations owns the tasks, comments and task_audit_logs tables.
var Migrations = database.Migration{
	FS:           migrationsFS,
	Dir:          "migrations",
	VersionTable: "tasks_goose_db_version",
}
