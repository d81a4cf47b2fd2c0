package testdb

import (
	"database/sql"
	"fmt"

	"github.com/phrazzld/lexis-api/internal/platform/postgres/migrations"
	"github.com/pressly/goose/v3"
)

// silentLogger keeps goose quiet during tests.
type silentLogger struct{}

func (silentLogger) Printf(string, ...interface{}) {}
func (silentLogger) Fatalf(format string, v ...interface{}) {
	panic(fmt.Sprintf(format, v...))
}

// ApplyMigrations runs every embedded migration against db.
func ApplyMigrations(db *sql.DB) error {
	goose.SetLogger(silentLogger{})
	goose.SetTableName(migrations.TableName)
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
