package memstore

import (
	"context"
	"math"

	"github.com/smallbiznis/kitties/internal/kitty/domain"
)

type txn struct {
	store    *Store
	readOnly bool
	records  map[domain.KittyID]domain.Kitty
	owners   map[domain.PrincipalID][]domain.Kitty

	// allocating is set once the transaction holds store.allocMu; lastID is
	// the staged counter.
	allocating bool
	lastID     uint32
}

func newTxn(store *Store, readOnly bool) *txn {
	return &txn{
		store:    store,
		readOnly: readOnly,
		records:  make(map[domain.KittyID]domain.Kitty),
		owners:   make(map[domain.PrincipalID][]domain.Kitty),
	}
}

func (t *txn) Records() domain.RecordStore { return recordStore{t} }
func (t *txn) Owners() domain.OwnershipIndex { return ownershipIndex{t} }
func (t *txn) IDs() domain.IDAllocator { return allocator{t} }

type recordStore struct{ tx *txn }

func (r recordStore) Get(ctx context.Context, id domain.KittyID) (*domain.Kitty, error) {
	if kitty, ok := r.tx.records[id]; ok {
		out := kitty.Clone()
		return &out, nil
	}
	kitty, ok := r.tx.store.record(id)
	if !ok {
		return nil, nil
	}
	return &kitty, nil
}

func (r recordStore) Put(ctx context.Context, kitty domain.Kitty) error {
	if r.tx.readOnly {
		return domain.ErrReadOnly
	}
	r.tx.records[kitty.ID] = kitty.Clone()
	return nil
}

type ownershipIndex struct{ tx *txn }

func (o ownershipIndex) Get(ctx context.Context, owner domain.PrincipalID) ([]domain.Kitty, error) {
	if items, ok := o.tx.owners[owner]; ok {
		return domain.CloneAll(items), nil
	}
	return o.tx.store.owned(owner), nil
}

func (o ownershipIndex) Put(ctx context.Context, owner domain.PrincipalID, kitties []domain.Kitty) error {
	if o.tx.readOnly {
		return domain.ErrReadOnly
	}
	o.tx.owners[owner] = domain.CloneAll(kitties)
	return nil
}

type allocator struct{ tx *txn }

func (a allocator) Next(ctx context.Context) (domain.KittyID, error) {
	if a.tx.readOnly {
		return 0, domain.ErrReadOnly
	}
	t := a.tx
	if !t.allocating {
		t.store.allocMu.Lock()
		t.allocating = true
		t.lastID = t.store.lastID.Load()
	}
	if t.lastID == math.MaxUint32 {
		return 0, domain.ErrIDSpaceExhausted
	}
	t.lastID++
	return domain.KittyID(t.lastID), nil
}

func (t *txn) releaseAllocator() {
	if t.allocating {
		t.allocating = false
		t.store.allocMu.Unlock()
	}
}
