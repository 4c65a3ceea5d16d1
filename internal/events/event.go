// Package events delivers registry notifications to their sinks.
package events

import (
	"context"
	"time"
)

const (
	KindKittyCreated     = "kitty.created"
	KindKittyTransferred = "kitty.transferred"
)

// Event is one registry notification. Subject is the kitty id; Principals
// lists every account the event concerns.
type Event struct {
	ID         string         `json:"id"`
	Kind       string         `json:"kind"`
	Subject    string         `json:"subject"`
	Principals []string       `json:"principals"`
	Payload    map[string]any `json:"payload"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Sink receives events after the operation that produced them has
// committed. Emit never reports failure to the caller.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

type SinkFunc func(ctx context.Context, event Event)

func (f SinkFunc) Emit(ctx context.Context, event Event) { f(ctx, event) }
