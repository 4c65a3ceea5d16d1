package events

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kitties/internal/clock"
	"github.com/smallbiznis/kitties/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	GenID     *snowflake.Node
	Clock     clock.Clock
	Hub       *Hub
	DB        *gorm.DB `optional:"true"`
	Log       *zap.Logger
}

var Module = fx.Module("events",
	fx.Provide(NewHub),
	fx.Provide(NewSink),
)

// NewSink assembles the sink chain. Events always reach the log and the live
// hub. With a database they are also written to the outbox, and relayed to
// Kafka when brokers are configured; without one they go to Kafka directly.
func NewSink(p Params) (Sink, error) {
	sinks := []Sink{NewLogSink(p.Log), p.Hub}

	var producer *KafkaProducer
	if p.Config.KafkaEnabled() {
		var err error
		producer, err = NewKafkaProducer(p.Config.KafkaBrokers, p.Config.AppName)
		if err != nil {
			return nil, err
		}
		p.Lifecycle.Append(fx.Hook{
			OnStop: func(context.Context) error {
				producer.Close()
				return nil
			},
		})
	}

	switch {
	case p.DB != nil:
		sinks = append(sinks, NewOutboxSink(p.DB, p.GenID, p.Log))
		if producer != nil {
			relay := NewRelay(p.DB, producer, p.Config.KafkaTopic, p.Clock, p.Config.OutboxRelayInterval, p.Log)
			p.Lifecycle.Append(fx.Hook{
				OnStart: func(context.Context) error {
					relay.Start()
					return nil
				},
				OnStop: relay.Stop,
			})
		}
	case producer != nil:
		sinks = append(sinks, NewKafkaSink(producer, p.Config.KafkaTopic, p.Log))
	}

	return NewDispatcher(p.GenID, p.Clock, sinks...), nil
}
