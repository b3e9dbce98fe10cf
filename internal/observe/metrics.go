// Package observe provides the tuner's OpenTelemetry metrics and tracing.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [InitProvider]
// installs a Prometheus exporter bridge so they can be scraped from the
// /metrics endpoint when `metrics_addr` is configured. Tests should use
// [NewMetrics] with their own [metric.MeterProvider].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all tuner metrics.
const meterName = "github.com/ColonelBlimp/stringtuner"

// Metrics holds the metric instruments for the detection engine. All fields
// are safe for concurrent use.
type Metrics struct {
	// CycleDuration tracks one capture-analyze-classify cycle.
	CycleDuration metric.Float64Histogram

	// CaptureDuration tracks the blocking capture alone.
	CaptureDuration metric.Float64Histogram

	// Readings counts delivered readings. Use with attribute:
	//   attribute.String("indicator", ...)
	Readings metric.Int64Counter

	// Errors counts failed cycles. Use with attribute:
	//   attribute.String("stage", ...)
	Errors metric.Int64Counter

	// ActiveSessions tracks running detection sessions (0 or 1 per controller).
	ActiveSessions metric.Int64UpDownCounter

	// CatalogRequests counts requests served by the catalog server. Use with
	// attributes route and status.
	CatalogRequests metric.Int64Counter
}

// cycleBuckets covers cadences from 50ms to a few seconds.
var cycleBuckets = []float64{
	0.05, 0.1, 0.2, 0.3, 0.4, 0.5, 0.75, 1, 2, 5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.CycleDuration, err = m.Float64Histogram("stringtuner.cycle.duration",
		metric.WithDescription("Latency of one detection cycle."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(cycleBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CaptureDuration, err = m.Float64Histogram("stringtuner.capture.duration",
		metric.WithDescription("Latency of the blocking audio capture."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(cycleBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Readings, err = m.Int64Counter("stringtuner.readings",
		metric.WithDescription("Readings delivered to the observer by indicator state."),
	); err != nil {
		return nil, err
	}
	if met.Errors, err = m.Int64Counter("stringtuner.errors",
		metric.WithDescription("Failed detection cycles by stage."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("stringtuner.active_sessions",
		metric.WithDescription("Number of running detection sessions."),
	); err != nil {
		return nil, err
	}
	if met.CatalogRequests, err = m.Int64Counter("stringtuner.catalog.requests",
		metric.WithDescription("Requests served by the tuning catalog server."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider].
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordCycle records the duration of a completed cycle and the capture it
// contained.
func (m *Metrics) RecordCycle(ctx context.Context, cycle, capture time.Duration) {
	m.CycleDuration.Record(ctx, cycle.Seconds())
	m.CaptureDuration.Record(ctx, capture.Seconds())
}

// RecordReading counts a reading delivered with the given indicator.
func (m *Metrics) RecordReading(ctx context.Context, indicator string) {
	m.Readings.Add(ctx, 1, metric.WithAttributes(attribute.String("indicator", indicator)))
}

// RecordError counts a failure in the named stage ("capture", "analyze", "panic").
func (m *Metrics) RecordError(ctx context.Context, stage string) {
	m.Errors.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

// SessionStarted increments the active session gauge.
func (m *Metrics) SessionStarted(ctx context.Context) {
	m.ActiveSessions.Add(ctx, 1)
}

// SessionEnded decrements the active session gauge.
func (m *Metrics) SessionEnded(ctx context.Context) {
	m.ActiveSessions.Add(ctx, -1)
}

// RecordRequest counts one catalog server response.
func (m *Metrics) RecordRequest(ctx context.Context, route string, status int) {
	m.CatalogRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("route", route),
		attribute.Int("status", status),
	))
}
