// Package migrations embeds the goose migration files for the SQL backends.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
)

// FS holds one directory of goose migrations per dialect
//
//go:embed sqlite/*.sql clickhouse/*.sql
var FS embed.FS

// Directory names inside FS with their goose dialects
const (
	SQLiteDir         = "sqlite"
	SQLiteDialect     = "sqlite3"
	ClickHouseDir     = "clickhouse"
	ClickHouseDialect = "clickhouse"
)

// goose keeps its base FS and dialect in package globals
var gooseMu sync.Mutex

// Prepare points goose at the embedded files and selects the dialect.
// The returned function releases goose for other callers.
func Prepare(dialect string) (func(), error) {
	gooseMu.Lock()
	goose.SetBaseFS(FS)
	if err := goose.SetDialect(dialect); err != nil {
		goose.SetBaseFS(nil)
		gooseMu.Unlock()
		return nil, fmt.Errorf("failed to set dialect: %w", err)
	}
	return func() {
		goose.SetBaseFS(nil)
		gooseMu.Unlock()
	}, nil
}

// Up applies every pending migration in dir
func Up(ctx context.Context, db *sql.DB, dialect, dir string) error {
	release, err := Prepare(dialect)
	if err != nil {
		return err
	}
	defer release()

	if err := goose.UpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
