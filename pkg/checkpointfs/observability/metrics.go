package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records checkpoint store metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordOperation records one store operation with its duration and error status.
	RecordOperation(ctx context.Context, op string, duration time.Duration, err error)

	// RecordCheckpointSize records the encoded size of a stored checkpoint.
	RecordCheckpointSize(ctx context.Context, sizeBytes int64)

	// RecordWrites records pending writes stored and discarded by first-write-wins.
	RecordWrites(ctx context.Context, stored, discarded int)
}

type otelMetrics struct {
	operations     metric.Int64Counter
	latency        metric.Float64Histogram
	errors         metric.Int64Counter
	checkpointSize metric.Int64Histogram
	writesStored   metric.Int64Counter
	writesDropped  metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("checkpointfs")

	operations, err := meter.Int64Counter("checkpointfs.operations",
		metric.WithDescription("Number of store operations"),
	)
	if err != nil {
		return nil, err
	}

	latency, err := meter.Float64Histogram("checkpointfs.operation.latency_ms",
		metric.WithDescription("Store operation latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	errs, err := meter.Int64Counter("checkpointfs.operation.errors",
		metric.WithDescription("Number of failed store operations"),
	)
	if err != nil {
		return nil, err
	}

	checkpointSize, err := meter.Int64Histogram("checkpointfs.checkpoint.size_bytes",
		metric.WithDescription("Encoded checkpoint size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	writesStored, err := meter.Int64Counter("checkpointfs.writes.stored",
		metric.WithDescription("Pending writes persisted"),
	)
	if err != nil {
		return nil, err
	}

	writesDropped, err := meter.Int64Counter("checkpointfs.writes.discarded",
		metric.WithDescription("Pending writes discarded because the slot was taken"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		operations:     operations,
		latency:        latency,
		errors:         errs,
		checkpointSize: checkpointSize,
		writesStored:   writesStored,
		writesDropped:  writesDropped,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

func (m *otelMetrics) RecordOperation(ctx context.Context, op string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("operation", op))

	m.operations.Add(ctx, 1, attrs)
	m.latency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if err != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}

func (m *otelMetrics) RecordCheckpointSize(ctx context.Context, sizeBytes int64) {
	m.checkpointSize.Record(ctx, sizeBytes)
}

func (m *otelMetrics) RecordWrites(ctx context.Context, stored, discarded int) {
	if stored > 0 {
		m.writesStored.Add(ctx, int64(stored))
	}
	if discarded > 0 {
		m.writesDropped.Add(ctx, int64(discarded))
	}
}
