// Package sqlite provides an embedded SQLite persistence implementation for single-node
// deployments and tests.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/autoflow/pkg/persistence/sqlbase"
	_ "modernc.org/sqlite"
)

const pragmas = "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

// Persistence implements persistence.Persistence for SQLite.
type Persistence struct {
	*sqlbase.Store
}

// NewPersistence opens (creating if needed) the database at path. Both a bare file
// path and a "sqlite://" URL are accepted.
func NewPersistence(ctx context.Context, logger *slog.Logger, path string) (*Persistence, error) {
	database, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// SQLite has a single writer; one connection keeps claims and upserts serialized.
	database.SetMaxOpenConns(1)

	err = database.PingContext(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, sqlbase.SQLite, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{Store: sqlbase.NewStore(database, logger, sqlbase.SQLite)}, nil
}

// DSN turns a path or sqlite:// URL into a modernc DSN with the pragmas the store needs.
func DSN(path string) string {
	path = strings.TrimPrefix(path, "sqlite://")
	if path == "" {
		path = ":memory:"
	}

	if strings.Contains(path, "?") {
		return path + "&" + pragmas
	}

	return "file:" + path + "?" + pragmas
}
