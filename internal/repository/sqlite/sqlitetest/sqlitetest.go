// Package sqlitetest provides migrated in-memory SQLite repositories for tests.
package sqlitetest

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/splax/expensetracker/internal/app/migrate"
	"github.com/splax/expensetracker/internal/repository/sqlite"
	"github.com/splax/expensetracker/pkg/config"
)

// New returns a repository over a fresh, fully migrated in-memory database
// that is closed when the test ends.
func New(tb testing.TB) *sqlite.Repository {
	tb.Helper()
	conn, err := sqlite.Open(":memory:")
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	tb.Cleanup(func() { conn.Close() })

	runner, err := migrate.New(conn, config.DriverSQLite, "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		tb.Fatalf("configure migrations: %v", err)
	}
	if err := runner.Ensure(context.Background()); err != nil {
		tb.Fatalf("apply migrations: %v", err)
	}
	return sqlite.New(conn)
}
