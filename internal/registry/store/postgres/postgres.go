// Package postgres opens the PostgreSQL registry backend.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"poe/internal/registry/store/sqlstore"
	"poe/pkg/platform/sqldb"
)

//go:embed migrations/*.sql
var migrations embed.FS

// MaxRetries bounds reruns of a transaction aborted by a serialization conflict.
const MaxRetries = 3

// SQLSTATE codes that mean the transaction lost a race and may be rerun.
const (
	codeSerializationFailure pq.ErrorCode = "40001"
	codeDeadlockDetected     pq.ErrorCode = "40P01"
)

// Open connects to PostgreSQL with lib/pq and verifies the connection.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate applies the embedded registry schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	return sqldb.Migrate(ctx, db, sqldb.Postgres, migrations, "migrations")
}

// New returns a registry store whose transactions run at SERIALIZABLE
// isolation and are rerun on serialization failures.
func New(db *sql.DB, logger *slog.Logger) *sqlstore.Store {
	return sqlstore.New(db, sqldb.Postgres, sqlstore.TxPolicy{
		Options:    &sql.TxOptions{Isolation: sql.LevelSerializable},
		MaxRetries: MaxRetries,
		Retryable:  IsRetryable,
	}, sqlstore.WithLogger(logger))
}

// IsRetryable reports whether err carries a serialization or deadlock SQLSTATE.
func IsRetryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == codeSerializationFailure || pqErr.Code == codeDeadlockDetected
}
