package observe

import (
	"context"
	"testing"
	"time"
)

func TestObserverContract_Noops(t *testing.T) {
	cfg := Config{
		ServiceName: "observe-test",
		Tracing:     TracingConfig{Enabled: false, Exporter: "none"},
		Metrics:     MetricsConfig{Enabled: false, Exporter: "none"},
		Logging:     LoggingConfig{Enabled: false, Level: "info"},
	}

	obs, err := NewObserver(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewObserver failed: %v", err)
	}

	if obs.Tracer() == nil {
		t.Fatalf("expected non-nil tracer")
	}
	if obs.Meter() == nil {
		t.Fatalf("expected non-nil meter")
	}
	if obs.Logger() == nil {
		t.Fatalf("expected non-nil logger")
	}
}

func TestLoggerContract_WithQuery(t *testing.T) {
	if NopLogger().WithQuery(QueryMeta{Hash: `["noop"]`}) == nil {
		t.Fatalf("WithQuery should return non-nil logger")
	}
}

func TestMetricsContract_NoPanic(t *testing.T) {
	var m Metrics = noopMetrics{}
	ctx := context.Background()
	meta := QueryMeta{Hash: `["noop"]`}
	m.RecordFetch(ctx, meta, time.Millisecond, nil)
	m.RecordRetry(ctx, meta)
	m.RecordHit(ctx, meta)
	m.AddEntries(ctx, 1)
}

func TestMiddlewareContract_NilComponents(t *testing.T) {
	mw := NewMiddleware(nil, nil, nil)
	got, err := mw.Wrap(func(ctx context.Context, m QueryMeta) (any, error) {
		return 42, nil
	})(context.Background(), QueryMeta{Hash: `["noop"]`})
	if err != nil || got != 42 {
		t.Fatalf("Wrap() = (%v, %v), want (42, nil)", got, err)
	}
}
