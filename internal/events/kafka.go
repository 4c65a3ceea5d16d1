package events

import (
	"context"
	"fmt"
	"time"

	"github.com/smallbiznis/kitties/internal/observability/logger"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// Producer writes one message to a topic and waits for the ack.
type Producer interface {
	Produce(ctx context.Context, topic string, key, value []byte) error
}

// AsyncProducer buffers one message and reports the ack through done. It
// must not block on the broker.
type AsyncProducer interface {
	ProduceAsync(ctx context.Context, topic string, key, value []byte, done func(error))
}

type KafkaProducer struct {
	client *kgo.Client
}

func NewKafkaProducer(brokers []string, clientID string) (*KafkaProducer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(5*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaProducer{client: client}, nil
}

func (p *KafkaProducer) Produce(ctx context.Context, topic string, key, value []byte) error {
	record := &kgo.Record{Topic: topic, Key: key, Value: value}
	return p.client.ProduceSync(ctx, record).FirstErr()
}

// ProduceAsync fails fast with kgo.ErrMaxBuffered instead of waiting for
// buffer space. Records sharing a key keep the order they were handed over in.
func (p *KafkaProducer) ProduceAsync(ctx context.Context, topic string, key, value []byte, done func(error)) {
	record := &kgo.Record{Topic: topic, Key: key, Value: value}
	p.client.TryProduce(ctx, record, func(_ *kgo.Record, err error) {
		done(err)
	})
}

func (p *KafkaProducer) Close() {
	p.client.Close()
}

const defaultProduceTimeout = 5 * time.Second

// KafkaSink publishes events straight to the broker. It is used when no
// outbox table is available. Emit only enqueues; delivery failures are logged
// from the producer callback.
type KafkaSink struct {
	producer AsyncProducer
	topic    string
	timeout  time.Duration
	log      *zap.Logger
}

func NewKafkaSink(producer AsyncProducer, topic string, log *zap.Logger) *KafkaSink {
	return &KafkaSink{
		producer: producer,
		topic:    topic,
		timeout:  defaultProduceTimeout,
		log:      log.Named("events.kafka"),
	}
}

func (s *KafkaSink) Emit(ctx context.Context, event Event) {
	value, err := Encode(event)
	if err != nil {
		s.logFailure(ctx, event, err)
		return
	}

	produceCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	s.producer.ProduceAsync(produceCtx, s.topic, []byte(event.Subject), value, func(err error) {
		cancel()
		if err != nil {
			s.logFailure(produceCtx, event, err)
		}
	})
}

func (s *KafkaSink) logFailure(ctx context.Context, event Event, err error) {
	logger.WithContext(ctx, s.log).Error("failed to publish event",
		zap.String("topic", s.topic),
		zap.String("kind", event.Kind),
		zap.String("subject", event.Subject),
		zap.Error(err),
	)
}

var (
	_ Sink          = (*KafkaSink)(nil)
	_ Producer      = (*KafkaProducer)(nil)
	_ AsyncProducer = (*KafkaProducer)(nil)
)
