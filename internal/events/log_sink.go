package events

import (
	"context"

	"github.com/smallbiznis/kitties/internal/observability/logger"
	"go.uber.org/zap"
)

type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log.Named("events.log")}
}

func (s *LogSink) Emit(ctx context.Context, event Event) {
	logger.WithContext(ctx, s.log).Info("registry event",
		zap.String("event_id", event.ID),
		zap.String("kind", event.Kind),
		zap.String("subject", event.Subject),
		zap.Strings("principals", event.Principals),
	)
}
