package memory

import (
	"context"
	"sync"
	"time"

	"poe/internal/registry/models"
	"poe/internal/registry/service"
	dErrors "poe/pkg/domain-errors"
	"poe/pkg/platform/sentinel"
)

// defaultTxTimeout is the maximum duration for a registry transaction.
const defaultTxTimeout = 5 * time.Second

// Store is an in-process ownership map.
//
// RunInTx holds a single process-wide lock for the whole callback, so
// mutations are applied one at a time in the order the lock is acquired.
// Writes made inside the callback are staged and applied only when it
// returns nil.
type Store struct {
	mu      sync.RWMutex
	entries map[models.RecordID]models.Ownership

	txMu    sync.Mutex
	timeout time.Duration
}

func New() *Store {
	return &Store{
		entries: make(map[models.RecordID]models.Ownership),
		timeout: defaultTxTimeout,
	}
}

func (s *Store) Contains(_ context.Context, rid models.RecordID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[rid]
	return ok, nil
}

func (s *Store) Get(_ context.Context, rid models.RecordID) (*models.Ownership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[rid]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &entry, nil
}

func (s *Store) Insert(_ context.Context, rid models.RecordID, entry models.Ownership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[rid] = entry
	return nil
}

func (s *Store) Remove(_ context.Context, rid models.RecordID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, rid)
	return nil
}

// Len returns the number of registered records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, store service.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	// Check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	staged := &stagedStore{base: s, writes: make(map[models.RecordID]*models.Ownership)}
	if err := fn(ctx, staged); err != nil {
		return err
	}
	staged.commit()
	return nil
}

// stagedStore overlays pending writes on the committed map. A nil value
// marks a pending removal.
type stagedStore struct {
	base   *Store
	writes map[models.RecordID]*models.Ownership
	order  []models.RecordID
}

func (t *stagedStore) Contains(ctx context.Context, rid models.RecordID) (bool, error) {
	if entry, ok := t.writes[rid]; ok {
		return entry != nil, nil
	}
	return t.base.Contains(ctx, rid)
}

func (t *stagedStore) Get(ctx context.Context, rid models.RecordID) (*models.Ownership, error) {
	if entry, ok := t.writes[rid]; ok {
		if entry == nil {
			return nil, sentinel.ErrNotFound
		}
		copied := *entry
		return &copied, nil
	}
	return t.base.Get(ctx, rid)
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

func (t *stagedStore) commit() {
	t.base.mu.Lock()
	defer t.base.mu.Unlock()
	for _, rid := range t.order {
		if entry := t.writes[rid]; entry != nil {
			t.base.entries[rid] = *entry
		} else {
			delete(t.base.entries, rid)
		}
	}
}
