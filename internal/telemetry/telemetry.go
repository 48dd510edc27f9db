package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ErrNilContext is returned when Init is called without a context
var ErrNilContext = errors.New("telemetry: nil context")

// Config controls telemetry behavior
type Config struct {
	// ServiceName identifies this process in traces and metrics
	ServiceName string

	// ServiceVersion is the version string reported with every span
	ServiceVersion string

	// Trace enables span export. Spans are written as JSON to TraceWriter.
	Trace bool

	// TraceWriter receives exported spans. Defaults to os.Stderr; stdout
	// carries the MCP protocol and must never be used.
	TraceWriter io.Writer

	// Metrics enables the OpenTelemetry Prometheus bridge
	Metrics bool

	// Registry receives the bridged instruments. Nil means the default
	// Prometheus registry, which also holds the promauto metrics.
	Registry *prometheus.Registry
}

// Providers holds what Init installed
type Providers struct {
	handler   http.Handler
	shutdowns []func(context.Context) error
}

// Init installs the global tracer and meter providers described by cfg.
// With both Trace and Metrics off the otel no-op providers stay in place.
// Shutdown must be called on exit to flush spans.
func Init(ctx context.Context, cfg Config) (*Providers, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	p := &Providers{}
	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	if cfg.Trace {
		w := cfg.TraceWriter
		if w == nil {
			w = os.Stderr
		}
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("create trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
		)
		otel.SetTracerProvider(tp)
		p.shutdowns = append(p.shutdowns, tp.Shutdown)
	}

	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if cfg.Registry != nil {
		registerer, gatherer = cfg.Registry, cfg.Registry
	}

	if cfg.Metrics {
		exporter, err := promexporter.New(promexporter.WithRegisterer(registerer))
		if err != nil {
			_ = p.Shutdown(ctx)
			return nil, fmt.Errorf("create prometheus exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		)
		otel.SetMeterProvider(mp)
		p.shutdowns = append(p.shutdowns, mp.Shutdown)
	}

	p.handler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	return p, nil
}

// MetricsHandler returns the handler for the /metrics endpoint
func (p *Providers) MetricsHandler() http.Handler {
	return p.handler
}

// Shutdown flushes and stops every installed provider
func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range p.shutdowns {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	p.shutdowns = nil
	return errors.Join(errs...)
}
