package domain

import "context"

// RecordStore maps ids to records.
type RecordStore interface {
	// Get returns nil when the id is unknown.
	Get(ctx context.Context, id KittyID) (*Kitty, error)
	Put(ctx context.Context, kitty Kitty) error
}

// OwnershipIndex maps a principal to its ordered collection.
type OwnershipIndex interface {
	// Get returns an empty collection for unknown principals.
	Get(ctx context.Context, owner PrincipalID) ([]Kitty, error)
	// Put replaces the whole collection.
	Put(ctx context.Context, owner PrincipalID, kitties []Kitty) error
}

type IDAllocator interface {
	Next(ctx context.Context) (KittyID, error)
}

// Tx exposes the stores inside one atomic unit of work.
type Tx interface {
	Records() RecordStore
	Owners() OwnershipIndex
	IDs() IDAllocator
}

// Store runs units of work. Writes made through RunInTx become visible
// together when fn returns nil and are discarded otherwise. View gives a
// read-only Tx.
type Store interface {
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
	Snapshot(ctx context.Context) (Snapshot, error)
}

// Limits supplies the registry capacity bound.
type Limits interface {
	MaxOwned() int
}

// FixedLimit is a constant capacity bound.
type FixedLimit int

func (l FixedLimit) MaxOwned() int { return int(l) }
