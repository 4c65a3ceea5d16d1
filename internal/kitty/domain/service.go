package domain

import (
	"context"
	"errors"
)

type CreateRequest struct {
	Caller PrincipalID
	Dna    []byte
	Price  int64
}

type TransferRequest struct {
	Caller   PrincipalID
	KittyID  KittyID
	NewOwner PrincipalID
}

type Service interface {
	Create(context.Context, CreateRequest) (Kitty, error)
	Transfer(context.Context, TransferRequest) error
	GetRecord(context.Context, KittyID) (*Kitty, error)
	ListOwned(context.Context, PrincipalID) ([]Kitty, error)
}

var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrCapacityExceeded = errors.New("capacity_exceeded")
	ErrNotFound         = errors.New("not_found")
	ErrNotOwner         = errors.New("not_owner")

	ErrInvalidPrincipal = errors.New("invalid_principal")
	ErrInvalidKittyID   = errors.New("invalid_kitty_id")
	ErrInvalidPrice     = errors.New("invalid_price")

	ErrLockUnavailable  = errors.New("lock_unavailable")
	ErrIDSpaceExhausted = errors.New("id_space_exhausted")
	ErrReadOnly         = errors.New("read_only_transaction")
)
