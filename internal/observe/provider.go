package observe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const serviceName = "stringtuner"

// ProviderConfig selects where the tuner's telemetry goes.
type ProviderConfig struct {
	// ServiceName defaults to "stringtuner".
	ServiceName    string
	ServiceVersion string

	// TraceWriter receives one JSON document per finished span, such as a
	// tuner.cycle span. Nil disables span export.
	TraceWriter io.Writer

	// Registerer receives the metrics collector. Nil uses
	// prometheus.DefaultRegisterer, which Handler serves.
	Registerer prometheus.Registerer
}

// InitProvider installs global meter and tracer providers. Metrics are
// bridged into Prometheus; spans are written to cfg.TraceWriter when set.
// The returned function flushes pending spans and stops both providers.
func InitProvider(ctx context.Context, cfg ProviderConfig) (func(context.Context) error, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = serviceName
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	var promOpts []promexporter.Option
	if cfg.Registerer != nil {
		promOpts = append(promOpts, promexporter.WithRegisterer(cfg.Registerer))
	}
	reader, err := promexporter.New(promOpts...)
	if err != nil {
		return nil, fmt.Errorf("prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader))

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceWriter != nil {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(cfg.TraceWriter))
		if err != nil {
			_ = mp.Shutdown(ctx)
			return nil, fmt.Errorf("trace exporter: %w", err)
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exp))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
