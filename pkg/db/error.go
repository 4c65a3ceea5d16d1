package db

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// ErrDuplicateKey marks a unique-constraint violation from any dialect.
var ErrDuplicateKey = errors.New("duplicate_key")

var duplicateMarkers = []string{
	"duplicate key value violates unique constraint", // postgres 23505
	"Error 1062",               // mysql
	"UNIQUE constraint failed", // sqlite 2067
}

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDuplicateKey) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	for _, marker := range duplicateMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// WrapDuplicate tags duplicate-key failures with ErrDuplicateKey and returns
// every other error unchanged.
func WrapDuplicate(err error) error {
	if err == nil || errors.Is(err, ErrDuplicateKey) || !IsDuplicateKeyErr(err) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
}
