// Package redis stores the ownership map in Redis hashes and appends registry
// events to a Redis stream in the same MULTI/EXEC as the ownership change.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"

	"poe/internal/registry/models"
	"poe/internal/registry/service"
	id "poe/pkg/domain"
	"poe/pkg/platform/sentinel"
)

// MaxRetries bounds reruns of a transaction whose watched keys changed.
const MaxRetries = 3

const (
	fieldOwner  = "owner"
	fieldHeight = "height"
)

// Store keeps one hash per record at <prefix>:record:<hex id>.
type Store struct {
	client     *redis.Client
	prefix     string
	stream     string
	maxLen     int64
	maxRetries int
	logger     *slog.Logger
}

type Option func(*Store)

// WithStreamMaxLen caps the event stream with approximate trimming.
func WithStreamMaxLen(n int64) Option {
	return func(s *Store) {
		s.maxLen = n
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(client *redis.Client, prefix string, opts ...Option) *Store {
	if prefix == "" {
		prefix = "poe"
	}
	s := &Store{
		client:     client,
		prefix:     prefix,
		stream:     prefix + ":events",
		maxRetries: MaxRetries,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(rid models.RecordID) string {
	return s.prefix + ":record:" + rid.String()
}

// Stream is the key of the event stream.
func (s *Store) Stream() string {
	return s.stream
}

func (s *Store) Contains(ctx context.Context, rid models.RecordID) (bool, error) {
	return contains(ctx, s.client, s.key(rid))
}

func (s *Store) Get(ctx context.Context, rid models.RecordID) (*models.Ownership, error) {
	return get(ctx, s.client, s.key(rid))
}

func (s *Store) Insert(ctx context.Context, rid models.RecordID, entry models.Ownership) error {
	if err := s.client.HSet(ctx, s.key(rid), ownershipFields(entry)...).Err(); err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, rid models.RecordID) error {
	if err := s.client.Del(ctx, s.key(rid)).Err(); err != nil {
		return fmt.Errorf("remove record: %w", err)
	}
	return nil
}

// Append writes event to the stream. Inside RunInTx the write is queued and
// sent with the transaction's MULTI/EXEC instead.
func (s *Store) Append(ctx context.Context, event models.Event) error {
	if staged, ok := ctx.Value(stagedKey{}).(*stagedStore); ok && staged.owner == s {
		staged.events = append(staged.events, event)
		return nil
	}
	args, err := s.xaddArgs(event)
	if err != nil {
		return err
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// RunInTx watches every record key fn reads, stages fn's writes and events,
// and commits them in one MULTI/EXEC. When a watched key changes before EXEC
// the attempt is discarded and fn runs again, up to MaxRetries extra times.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, store service.Store) error) error {
	for attempt := 0; ; attempt++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			staged := &stagedStore{owner: s, tx: tx, writes: make(map[models.RecordID]*models.Ownership)}
			if err := fn(context.WithValue(ctx, stagedKey{}, staged), staged); err != nil {
				return err
			}
			return staged.commit(ctx)
		})
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		if attempt >= s.maxRetries {
			return fmt.Errorf("registry transaction: %w", sentinel.ErrConflict)
		}
		s.logger.WarnContext(ctx, "retrying registry transaction", "attempt", attempt+1, "backend", "redis")
	}
}

func (s *Store) xaddArgs(event models.Event) (*redis.XAddArgs, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"kind":      event.Kind.String(),
			"record_id": event.RecordID.String(),
			"height":    strconv.FormatUint(uint64(event.Height), 10),
			"payload":   string(payload),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	return args, nil
}

type stagedKey struct{}

// stagedStore overlays pending writes on the watched transaction. A nil
// value marks a pending removal.
type stagedStore struct {
	owner  *Store
	tx     *redis.Tx
	writes map[models.RecordID]*models.Ownership
	order  []models.RecordID
	events []models.Event
}

func (t *stagedStore) watch(ctx context.Context, rid models.RecordID) (string, error) {
	key := t.owner.key(rid)
	if err := t.tx.Watch(ctx, key).Err(); err != nil {
		return "", fmt.Errorf("watch record: %w", err)
	}
	return key, nil
}

func (t *stagedStore) Contains(ctx context.Context, rid models.RecordID) (bool, error) {
	if entry, ok := t.writes[rid]; ok {
		return entry != nil, nil
	}
	key, err := t.watch(ctx, rid)
	if err != nil {
		return false, err
	}
	return contains(ctx, t.tx, key)
}

func (t *stagedStore) Get(ctx context.Context, rid models.RecordID) (*models.Ownership, error) {
	if entry, ok := t.writes[rid]; ok {
		if entry == nil {
			return nil, sentinel.ErrNotFound
		}
		copied := *entry
		return &copied, nil
	}
	key, err := t.watch(ctx, rid)
	if err != nil {
		return nil, err
	}
	return get(ctx, t.tx, key)
}

func (t *stagedStore) Insert(_ context.Context, rid models.RecordID, entry models.Ownership) error {
	t.stage(rid, &entry)
	return nil
}

func (t *stagedStore) Remove(_ context.Context, rid models.RecordID) error {
	t.stage(rid, nil)
	return nil
}

func (t *stagedStore) stage(rid models.RecordID, entry *models.Ownership) {
	if _, ok := t.writes[rid]; !ok {
		t.order = append(t.order, rid)
	}
	t.writes[rid] = entry
}

func (t *stagedStore) commit(ctx context.Context) error {
	if len(t.order) == 0 && len(t.events) == 0 {
		return nil
	}
	eventArgs := make([]*redis.XAddArgs, 0, len(t.events))
	for _, event := range t.events {
		args, err := t.owner.xaddArgs(event)
		if err != nil {
			return err
		}
		eventArgs = append(eventArgs, args)
	}
	_, err := t.tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, rid := range t.order {
			key := t.owner.key(rid)
			if entry := t.writes[rid]; entry != nil {
				pipe.Del(ctx, key)
				pipe.HSet(ctx, key, ownershipFields(*entry)...)
			} else {
				pipe.Del(ctx, key)
			}
		}
		for _, args := range eventArgs {
			pipe.XAdd(ctx, args)
		}
		return nil
	})
	return err
}

func contains(ctx context.Context, c redis.Cmdable, key string) (bool, error) {
	n, err := c.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("check record: %w", err)
	}
	return n > 0, nil
}

func get(ctx context.Context, c redis.Cmdable, key string) (*models.Ownership, error) {
	fields, err := c.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	if len(fields) == 0 {
		return nil, sentinel.ErrNotFound
	}
	height, err := strconv.ParseUint(fields[fieldHeight], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("get record: malformed height: %w", err)
	}
	return &models.Ownership{Owner: id.AccountID(fields[fieldOwner]), Height: id.BlockNumber(height)}, nil
}

func ownershipFields(entry models.Ownership) []any {
	return []any{
		fieldOwner, entry.Owner.String(),
		fieldHeight, strconv.FormatUint(uint64(entry.Height), 10),
	}
}
