package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/smallbiznis/kitties/internal/clock"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultRelayBatch = 100

// Relay moves unpublished outbox rows to the broker in id order. A failed
// produce stops the batch so later events never overtake earlier ones.
type Relay struct {
	db       *gorm.DB
	producer Producer
	topic    string
	clock    clock.Clock
	log      *zap.Logger
	interval time.Duration
	batch    int

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func NewRelay(db *gorm.DB, producer Producer, topic string, c clock.Clock, interval time.Duration, log *zap.Logger) *Relay {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Relay{
		db:       db,
		producer: producer,
		topic:    topic,
		clock:    c,
		log:      log.Named("events.relay"),
		interval: interval,
		batch:    defaultRelayBatch,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Flush relays one batch and returns how many events were published.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	var rows []OutboxEvent
	err := r.db.WithContext(ctx).
		Where("published_at IS NULL").
		Order("id ASC").
		Limit(r.batch).
		Find(&rows).Error
	if err != nil {
		return 0, fmt.Errorf("load outbox: %w", err)
	}

	published := 0
	for _, row := range rows {
		event, err := row.toEvent()
		if err != nil {
			return published, fmt.Errorf("decode outbox event %s: %w", row.ID, err)
		}
		value, err := Encode(event)
		if err != nil {
			return published, err
		}
		if err := r.producer.Produce(ctx, r.topic, []byte(row.Subject), value); err != nil {
			return published, fmt.Errorf("produce outbox event %s: %w", row.ID, err)
		}

		now := r.clock.Now()
		err = r.db.WithContext(ctx).
			Model(&OutboxEvent{}).
			Where("id = ?", row.ID).
			Update("published_at", now).Error
		if err != nil {
			return published, fmt.Errorf("mark outbox event %s: %w", row.ID, err)
		}
		published++
	}
	return published, nil
}

func (r *Relay) Start() {
	go r.run()
}

func (r *Relay) Stop(ctx context.Context) error {
	r.once.Do(func() { close(r.stop) })
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Relay) run() {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-r.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			n, err := r.Flush(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				r.log.Warn("outbox relay failed", zap.Int("published", n), zap.Error(err))
				continue
			}
			if n > 0 {
				r.log.Debug("outbox relay published", zap.Int("published", n))
			}
		}
	}
}
