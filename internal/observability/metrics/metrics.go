package metrics

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics exposes registry instruments.
type Metrics struct {
	kittiesCreated     metric.Int64Counter
	kittiesTransferred metric.Int64Counter
	registryRejected   metric.Int64Counter
	lockWait           metric.Float64Histogram
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(serviceName(cfg))

	kittiesCreated, err := meter.Int64Counter("kitties_created_total")
	if err != nil {
		return nil, err
	}
	kittiesTransferred, err := meter.Int64Counter("kitties_transferred_total")
	if err != nil {
		return nil, err
	}
	registryRejected, err := meter.Int64Counter("kitties_rejected_total")
	if err != nil {
		return nil, err
	}
	lockWait, err := meter.Float64Histogram("kitties_lock_wait_seconds", metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		kittiesCreated:     kittiesCreated,
		kittiesTransferred: kittiesTransferred,
		registryRejected:   registryRejected,
		lockWait:           lockWait,
	}, nil
}

// RecordKittyCreated increments created record counts.
func (m *Metrics) RecordKittyCreated(ctx context.Context, gender string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("gender", strings.TrimSpace(gender)))
	m.kittiesCreated.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordKittyTransferred increments completed transfer counts.
func (m *Metrics) RecordKittyTransferred(ctx context.Context, selfTransfer bool) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.Bool("self_transfer", selfTransfer))
	m.kittiesTransferred.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRejected counts operations refused by a precondition.
func (m *Metrics) RecordRejected(ctx context.Context, operation, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("operation", strings.TrimSpace(operation)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.registryRejected.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordLockWait observes time spent waiting on the commit barrier.
func (m *Metrics) RecordLockWait(ctx context.Context, operation string, wait time.Duration) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("operation", strings.TrimSpace(operation)))
	m.lockWait.Record(ctx, wait.Seconds(), metric.WithAttributes(attrs...))
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"operation":     {},
	"reason":        {},
	"gender":        {},
	"self_transfer": {},
	"status_code":   {},
	"route":         {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
