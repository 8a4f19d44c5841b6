// Package sqlite opens the single-file SQLite registry backend.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"poe/internal/registry/store/sqlstore"
	"poe/pkg/platform/sqldb"
)

//go:embed migrations/*.sql
var migrations embed.FS

// maxBusyRetries bounds reruns of a transaction that hit a locked database.
const maxBusyRetries = 3

// Open opens the database file at path. Transactions take the write lock
// when they begin so concurrent writers queue instead of failing at commit.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return db, nil
}

// Migrate applies the embedded registry schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	return sqldb.Migrate(ctx, db, sqldb.SQLite, migrations, "migrations")
}

// New returns a registry store that serialises transactions in process.
func New(db *sql.DB, logger *slog.Logger) *sqlstore.Store {
	return sqlstore.New(db, sqldb.SQLite, sqlstore.TxPolicy{
		MaxRetries: maxBusyRetries,
		Retryable:  IsBusy,
		Serialize:  true,
	}, sqlstore.WithLogger(logger))
}

// IsBusy reports whether err is SQLITE_BUSY or SQLITE_LOCKED.
func IsBusy(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code() & 0xff
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}
