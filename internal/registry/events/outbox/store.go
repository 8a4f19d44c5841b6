// Package outbox implements the transactional outbox for registry events.
//
// Append writes through the SQL transaction bound to the context, so an event
// row commits or rolls back together with the ownership change that produced
// it. The Worker later publishes committed rows in sequence order.
package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"poe/internal/registry/models"
	"poe/pkg/platform/sqldb"
	txcontext "poe/pkg/platform/tx"
)

// Message is a committed, not yet published outbox row.
type Message struct {
	Sequence int64
	ID       uuid.UUID
	Kind     models.EventKind
	RecordID models.RecordID
	Payload  []byte
}

type Store struct {
	db      *sql.DB
	dialect sqldb.Dialect
	now     func() time.Time
}

func New(db *sql.DB, dialect sqldb.Dialect) *Store {
	return &Store{db: db, dialect: dialect, now: time.Now}
}

// Append stores event as an outbox row.
func (s *Store) Append(ctx context.Context, event models.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, s.dialect.Rebind(`
		INSERT INTO registry_outbox (id, event_type, record_id, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
	`),
		uuid.New().String(),
		event.Kind.String(),
		event.RecordID.Bytes(),
		payload,
		s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// FetchUnpublished returns up to limit unpublished rows, oldest first.
func (s *Store) FetchUnpublished(ctx context.Context, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(`
		SELECT sequence, id, event_type, record_id, payload
		FROM registry_outbox
		WHERE published_at IS NULL
		ORDER BY sequence ASC
		LIMIT ?
	`), limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			msg      Message
			rawID    string
			kind     string
			recordID []byte
		)
		if err := rows.Scan(&msg.Sequence, &rawID, &kind, &recordID, &msg.Payload); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		if msg.ID, err = uuid.Parse(rawID); err != nil {
			return nil, fmt.Errorf("outbox entry %d: %w", msg.Sequence, err)
		}
		if msg.RecordID, err = models.RecordIDFromBytes(recordID); err != nil {
			return nil, fmt.Errorf("outbox entry %d: %w", msg.Sequence, err)
		}
		msg.Kind = models.EventKind(kind)
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return out, nil
}

// MarkPublished stamps the given sequences as published.
func (s *Store) MarkPublished(ctx context.Context, sequences []int64) error {
	if len(sequences) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(sequences)), ", ")
	args := make([]any, 0, len(sequences)+1)
	args = append(args, s.now().UTC())
	for _, seq := range sequences {
		args = append(args, seq)
	}
	_, err := s.db.ExecContext(ctx, s.dialect.Rebind(`
		UPDATE registry_outbox SET published_at = ?
		WHERE sequence IN (`+placeholders+`) AND published_at IS NULL
	`), args...)
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}

// PrunePublished deletes rows published before cutoff and returns how many
// were removed. Unpublished rows are never deleted.
func (s *Store) PrunePublished(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(`
		DELETE FROM registry_outbox
		WHERE published_at IS NOT NULL AND published_at < ?
	`), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune outbox: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune outbox: %w", err)
	}
	return n, nil
}

// Pending counts unpublished rows.
func (s *Store) Pending(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM registry_outbox WHERE published_at IS NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count outbox: %w", err)
	}
	return n, nil
}
