// Package memstore keeps registry state in process memory.
//
// Writes made inside RunInTx are staged on the transaction and applied under
// a single write lock once the callback succeeds, so readers never observe a
// partially applied operation. Isolation between writers touching the same
// keys is provided by the caller's commit barrier. Id allocation is the
// exception: the first Next in a transaction holds the allocator until the
// transaction ends, and the new counter value is only published on commit.
package memstore

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/smallbiznis/kitties/internal/kitty/domain"
)

type Store struct {
	mu      sync.RWMutex
	records map[domain.KittyID]domain.Kitty
	owners  map[domain.PrincipalID][]domain.Kitty

	allocMu sync.Mutex
	lastID  atomic.Uint32
}

func New() *Store {
	return &Store{
		records: make(map[domain.KittyID]domain.Kitty),
		owners:  make(map[domain.PrincipalID][]domain.Kitty),
	}
}

func (s *Store) RunInTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := newTxn(s, false)
	defer tx.releaseAllocator()
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, kitty := range tx.records {
		s.records[id] = kitty
	}
	for owner, items := range tx.owners {
		s.owners[owner] = items
	}
	if tx.allocating {
		s.lastID.Store(tx.lastID)
	}
	return nil
}

func (s *Store) View(ctx context.Context, fn func(tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(newTxn(s, true))
}

func (s *Store) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := domain.Snapshot{
		Records: make(map[domain.KittyID]domain.Kitty, len(s.records)),
		Owned:   make(map[domain.PrincipalID][]domain.KittyID, len(s.owners)),
		LastID:  domain.KittyID(s.lastID.Load()),
	}
	for id, kitty := range s.records {
		snap.Records[id] = kitty.Clone()
	}
	for owner, items := range s.owners {
		if len(items) == 0 {
			continue
		}
		ids := make([]domain.KittyID, 0, len(items))
		for _, item := range items {
			ids = append(ids, item.ID)
		}
		snap.Owned[owner] = ids
	}
	return snap, nil
}

func (s *Store) record(id domain.KittyID) (domain.Kitty, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	kitty, ok := s.records[id]
	if !ok {
		return domain.Kitty{}, false
	}
	return kitty.Clone(), true
}

func (s *Store) owned(owner domain.PrincipalID) []domain.Kitty {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.CloneAll(s.owners[owner])
}

var _ domain.Store = (*Store)(nil)
