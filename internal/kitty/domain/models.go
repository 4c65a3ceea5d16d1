package domain

import (
	"strconv"
	"strings"
)

// KittyID identifies a record. Zero is never allocated.
type KittyID uint32

func (id KittyID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// PrincipalID is an opaque account token.
type PrincipalID string

func (p PrincipalID) String() string {
	return string(p)
}

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// Kitty is the registry record. Only Owner changes after creation.
type Kitty struct {
	ID        KittyID     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Dna       []byte      `gorm:"not null" json:"dna"`
	Owner     PrincipalID `gorm:"not null;index;size:128" json:"owner"`
	Price     int64       `gorm:"not null" json:"price"`
	Gender    Gender      `gorm:"not null;size:16" json:"gender"`
	CreatedAt int64       `gorm:"column:created_at;not null;autoCreateTime:false" json:"created_at"`
}

func (Kitty) TableName() string { return "kitties" }

// Clone returns a copy that shares no memory with k.
func (k Kitty) Clone() Kitty {
	out := k
	if k.Dna != nil {
		out.Dna = append([]byte(nil), k.Dna...)
	}
	return out
}

// CloneAll copies a collection, preserving order. The result is never nil.
func CloneAll(items []Kitty) []Kitty {
	out := make([]Kitty, 0, len(items))
	for _, item := range items {
		out = append(out, item.Clone())
	}
	return out
}

// Snapshot is a full export of registry state.
type Snapshot struct {
	Records map[KittyID]Kitty
	Owned   map[PrincipalID][]KittyID
	LastID  KittyID
}

const maxPrincipalLength = 128

// ParsePrincipal normalizes a principal token.
func ParsePrincipal(raw string) (PrincipalID, error) {
	value := strings.TrimSpace(raw)
	if value == "" || len(value) > maxPrincipalLength {
		return "", ErrInvalidPrincipal
	}
	return PrincipalID(value), nil
}

func ParseKittyID(raw string) (KittyID, error) {
	parsed, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil || parsed == 0 {
		return 0, ErrInvalidKittyID
	}
	return KittyID(parsed), nil
}
