package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// Metrics records cache and fetch metrics.
//
// Attributes are deliberately coarse: query hashes are unbounded, so they
// appear on spans and logs but never as metric attributes.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordFetch records one fetch attempt with duration and error status.
	RecordFetch(ctx context.Context, meta QueryMeta, duration time.Duration, err error)

	// RecordRetry records that a failed attempt is being retried.
	RecordRetry(ctx context.Context, meta QueryMeta)

	// RecordHit records a read served from the cache without fetching.
	RecordHit(ctx context.Context, meta QueryMeta)

	// AddEntries adjusts the live entry gauge by delta.
	AddEntries(ctx context.Context, delta int64)
}

type metricsImpl struct {
	totalCount   metric.Int64Counter
	errorCount   metric.Int64Counter
	retryCount   metric.Int64Counter
	hitCount     metric.Int64Counter
	durationHist metric.Float64Histogram
	entries      metric.Int64UpDownCounter
}

// NewMetrics creates a Metrics instance recording into meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	return newMetrics(meter)
}

func newMetrics(meter metric.Meter) (*metricsImpl, error) {
	totalCount, err := meter.Int64Counter(
		"query.fetch.total",
		metric.WithDescription("Total number of fetch attempts"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"query.fetch.errors",
		metric.WithDescription("Total number of failed fetch attempts"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	retryCount, err := meter.Int64Counter(
		"query.fetch.retries",
		metric.WithDescription("Total number of fetch retries"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, err
	}

	hitCount, err := meter.Int64Counter(
		"query.cache.hits",
		metric.WithDescription("Reads served from fresh cached data"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"query.fetch.duration_ms",
		metric.WithDescription("Fetch attempt duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	entries, err := meter.Int64UpDownCounter(
		"query.entries",
		metric.WithDescription("Number of live cache entries"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		totalCount:   totalCount,
		errorCount:   errorCount,
		retryCount:   retryCount,
		hitCount:     hitCount,
		durationHist: durationHist,
		entries:      entries,
	}, nil
}

func (m *metricsImpl) RecordFetch(ctx context.Context, _ QueryMeta, duration time.Duration, err error) {
	m.totalCount.Add(ctx, 1)
	if err != nil {
		m.errorCount.Add(ctx, 1)
	}
	m.durationHist.Record(ctx, float64(duration.Microseconds())/1000)
}

func (m *metricsImpl) RecordRetry(ctx context.Context, _ QueryMeta) {
	m.retryCount.Add(ctx, 1)
}

func (m *metricsImpl) RecordHit(ctx context.Context, _ QueryMeta) {
	m.hitCount.Add(ctx, 1)
}

func (m *metricsImpl) AddEntries(ctx context.Context, delta int64) {
	m.entries.Add(ctx, delta)
}

type noopMetrics struct{}

func (noopMetrics) RecordFetch(context.Context, QueryMeta, time.Duration, error) {}
func (noopMetrics) RecordRetry(context.Context, QueryMeta)                       {}
func (noopMetrics) RecordHit(context.Context, QueryMeta)                         {}
func (noopMetrics) AddEntries(context.Context, int64)                            {}
