package database

import (
	"context"
	"fmt"
	"io/fs"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	log "github.com/sirupsen/logrus"
)

// goose keeps its base FS and table name in package state.
var gooseMu sync.Mutex

// Migration names a set of embedded goose migrations and the version table
// that tracks them, so services sharing a database do not collide.
type Migration struct {
	FS           fs.FS
	Dir          string
	VersionTable string
}

// Migrate applies all pending migrations in m.
func Migrate(ctx context.Context, pool *pgxpool.Pool, m Migration, logger log.FieldLogger) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(m.FS)
	defer goose.SetBaseFS(nil)
	goose.SetTableName(m.VersionTable)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, m.Dir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("get migration version: %w", err)
	}
	logger.WithFields(log.Fields{"table": m.VersionTable, "version": version}).Info("migrations completed")
	return nil
}
