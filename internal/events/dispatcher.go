package events

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kitties/internal/clock"
)

// Dispatcher stamps events with an id and time, then hands them to every
// sink in order.
type Dispatcher struct {
	genID *snowflake.Node
	clock clock.Clock
	sinks []Sink
}

func NewDispatcher(genID *snowflake.Node, c clock.Clock, sinks ...Sink) *Dispatcher {
	out := make([]Sink, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			out = append(out, sink)
		}
	}
	return &Dispatcher{genID: genID, clock: c, sinks: out}
}

func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if event.ID == "" && d.genID != nil {
		event.ID = d.genID.Generate().String()
	}
	if event.OccurredAt.IsZero() && d.clock != nil {
		event.OccurredAt = d.clock.Now()
	}
	for _, sink := range d.sinks {
		sink.Emit(ctx, event)
	}
}

var _ Sink = (*Dispatcher)(nil)
