package events

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kitties/internal/observability/logger"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// OutboxEvent is a durable copy of an emitted event awaiting relay.
type OutboxEvent struct {
	ID          snowflake.ID      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Kind        string            `gorm:"not null;size:64" json:"kind"`
	Subject     string            `gorm:"not null;size:32" json:"subject"`
	Principals  datatypes.JSON    `gorm:"not null" json:"principals"`
	Payload     datatypes.JSONMap `gorm:"not null" json:"payload"`
	OccurredAt  time.Time         `gorm:"not null" json:"occurred_at"`
	PublishedAt *time.Time        `gorm:"index" json:"published_at,omitempty"`
}

func (OutboxEvent) TableName() string { return "kitty_events" }

// OutboxSink records events in the kitty_events table.
type OutboxSink struct {
	db    *gorm.DB
	genID *snowflake.Node
	log   *zap.Logger
}

func NewOutboxSink(db *gorm.DB, genID *snowflake.Node, log *zap.Logger) *OutboxSink {
	return &OutboxSink{db: db, genID: genID, log: log.Named("events.outbox")}
}

func (s *OutboxSink) Emit(ctx context.Context, event Event) {
	row, err := s.toRow(event)
	if err == nil {
		err = s.db.WithContext(ctx).Create(&row).Error
	}
	if err != nil {
		logger.WithContext(ctx, s.log).Error("failed to record event",
			zap.String("kind", event.Kind),
			zap.String("subject", event.Subject),
			zap.Error(err),
		)
	}
}

func (s *OutboxSink) toRow(event Event) (OutboxEvent, error) {
	id, err := snowflake.ParseString(event.ID)
	if err != nil || id == 0 {
		id = s.genID.Generate()
	}
	principals, err := marshalJSON(event.Principals)
	if err != nil {
		return OutboxEvent{}, err
	}
	payload := datatypes.JSONMap{}
	for k, v := range event.Payload {
		payload[k] = v
	}
	return OutboxEvent{
		ID:         id,
		Kind:       event.Kind,
		Subject:    event.Subject,
		Principals: principals,
		Payload:    payload,
		OccurredAt: event.OccurredAt.UTC(),
	}, nil
}

func (r OutboxEvent) toEvent() (Event, error) {
	var principals []string
	if len(r.Principals) > 0 {
		if err := unmarshalJSON(r.Principals, &principals); err != nil {
			return Event{}, err
		}
	}
	return Event{
		ID:         r.ID.String(),
		Kind:       r.Kind,
		Subject:    r.Subject,
		Principals: principals,
		Payload:    map[string]any(r.Payload),
		OccurredAt: r.OccurredAt,
	}, nil
}

var _ Sink = (*OutboxSink)(nil)
