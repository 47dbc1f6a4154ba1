// Package telemetry carries the observability glue: OpenTelemetry metrics
// for the relay and a Temporal logger adapter backed by clue.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "goa.design/docchat/relay"

// StreamMetrics instruments relay sessions.
type StreamMetrics struct {
	tokens   metric.Int64Counter
	sessions metric.Int64Counter
	duration metric.Float64Histogram
}

// NewStreamMetrics registers the relay instruments on the global meter
// provider.
func NewStreamMetrics() (*StreamMetrics, error) {
	meter := otel.Meter(meterName)
	tokens, err := meter.Int64Counter("docchat.relay.tokens",
		metric.WithDescription("Token frames relayed to clients"))
	if err != nil {
		return nil, err
	}
	sessions, err := meter.Int64Counter("docchat.relay.sessions",
		metric.WithDescription("Relay sessions by outcome"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("docchat.relay.duration",
		metric.WithDescription("Relay session duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &StreamMetrics{tokens: tokens, sessions: sessions, duration: duration}, nil
}

// RecordSession records one finished relay session.
func (m *StreamMetrics) RecordSession(ctx context.Context, tokens int, elapsed time.Duration, outcome string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.tokens.Add(ctx, int64(tokens), attrs)
	m.sessions.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}
