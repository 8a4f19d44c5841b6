// Package sqlstore implements the ownership map over database/sql. The
// postgres and sqlite backends share it and differ only in placeholder
// dialect and transaction policy.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"poe/internal/registry/models"
	"poe/internal/registry/service"
	id "poe/pkg/domain"
	"poe/pkg/platform/sentinel"
	"poe/pkg/platform/sqldb"
	txcontext "poe/pkg/platform/tx"
)

// TxPolicy controls how RunInTx opens and retries transactions.
type TxPolicy struct {
	Options *sql.TxOptions
	// MaxRetries is the number of extra attempts after a retryable failure.
	MaxRetries int
	// Retryable reports whether a failed attempt may be run again.
	Retryable func(error) bool
	// Serialize holds a process-wide lock around each transaction.
	Serialize bool
}

// Store persists ownership entries in the registry_records table.
type Store struct {
	db      *sql.DB
	dialect sqldb.Dialect
	policy  TxPolicy
	logger  *slog.Logger
	now     func() time.Time

	mu sync.Mutex
}

type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(db *sql.DB, dialect sqldb.Dialect, policy TxPolicy, opts ...Option) *Store {
	s := &Store{db: db, dialect: dialect, policy: policy, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB exposes the handle so the outbox can share it.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Dialect() sqldb.Dialect {
	return s.dialect
}

func (s *Store) Contains(ctx context.Context, rid models.RecordID) (bool, error) {
	var one int
	err := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		s.dialect.Rebind(`SELECT 1 FROM registry_records WHERE record_id = ?`),
		rid.Bytes(),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check record: %w", err)
	}
	return true, nil
}

func (s *Store) Get(ctx context.Context, rid models.RecordID) (*models.Ownership, error) {
	var (
		owner  string
		height int64
	)
	err := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		s.dialect.Rebind(`SELECT owner, height FROM registry_records WHERE record_id = ?`),
		rid.Bytes(),
	).Scan(&owner, &height)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	if height < 0 {
		return nil, fmt.Errorf("get record: negative height %d", height)
	}
	return &models.Ownership{Owner: id.AccountID(owner), Height: id.BlockNumber(height)}, nil
}

func (s *Store) Insert(ctx context.Context, rid models.RecordID, entry models.Ownership) error {
	if uint64(entry.Height) > math.MaxInt64 {
		return fmt.Errorf("insert record: height %d out of range", entry.Height)
	}
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, s.dialect.Rebind(`
		INSERT INTO registry_records (record_id, owner, height, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (record_id) DO UPDATE
		SET owner = excluded.owner, height = excluded.height, updated_at = excluded.updated_at
	`),
		rid.Bytes(),
		entry.Owner.String(),
		int64(entry.Height),
		s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, rid models.RecordID) error {
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx,
		s.dialect.Rebind(`DELETE FROM registry_records WHERE record_id = ?`),
		rid.Bytes(),
	)
	if err != nil {
		return fmt.Errorf("remove record: %w", err)
	}
	return nil
}

// Count returns the number of registered records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM registry_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// RunInTx runs fn in a SQL transaction bound to the context passed to fn, so
// the outbox writes through the same transaction. Attempts failing with a
// retryable error are rerun up to MaxRetries times; when the budget runs
// out the error wraps sentinel.ErrConflict.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, store service.Store) error) error {
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx, s)
	}
	if s.policy.Serialize {
		s.mu.Lock()
		defer s.mu.Unlock()
	}

	for attempt := 0; ; attempt++ {
		err := txcontext.Run(ctx, s.db, s.policy.Options, func(txCtx context.Context) error {
			return fn(txCtx, s)
		})
		if err == nil {
			return nil
		}
		if s.policy.Retryable == nil || !s.policy.Retryable(err) || ctx.Err() != nil {
			return err
		}
		if attempt >= s.policy.MaxRetries {
			return fmt.Errorf("registry transaction: %w: %w", sentinel.ErrConflict, err)
		}
		s.logger.WarnContext(ctx, "retrying registry transaction",
			"attempt", attempt+1,
			"dialect", s.dialect.String(),
			"error", err,
		)
	}
}
