// Package lock serializes work on named keys.
package lock

import (
	"context"
	"errors"
	"sort"
)

var ErrNoKeys = errors.New("lock: no keys")

// Release frees every key taken by one Acquire call. Calling it more than
// once is safe.
type Release func()

// Locker takes exclusive hold of a set of keys. Implementations acquire keys
// in a stable order so overlapping key sets cannot deadlock.
type Locker interface {
	Acquire(ctx context.Context, keys ...string) (Release, error)
}

func normalizeKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
