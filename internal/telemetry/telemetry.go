// Package telemetry provides OpenTelemetry integration for basicforms.
//
// Telemetry is disabled by default and then installs no-op providers.
// When enabled, spans and metrics are written to the stdout exporters
// (telemetry.stdout) and metrics are pushed over OTLP/HTTP when
// telemetry.otlp_endpoint is set.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/thetanil/basicforms/internal/config"
)

const instrumentationScope = "github.com/thetanil/basicforms"

// Providers owns the installed providers.
type Providers struct {
	shutdownFns []func(context.Context) error
}

// Init installs global tracer and meter providers. w receives stdout
// exporter output.
func Init(ctx context.Context, cfg config.TelemetryConfig, serviceName, version string, w io.Writer) (*Providers, error) {
	p := &Providers{}
	if w == nil {
		w = os.Stderr
	}
	if !cfg.Enabled {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return p, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: resource: %w", err)
	}

	tp, err := buildTraceProvider(cfg, res, w)
	if err != nil {
		return nil, fmt.Errorf("telemetry: trace provider: %w", err)
	}
	otel.SetTracerProvider(tp)
	p.shutdownFns = append(p.shutdownFns, tp.Shutdown)

	mp, err := buildMetricProvider(ctx, cfg, res, w)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("telemetry: metric provider: %w", err)
	}
	otel.SetMeterProvider(mp)
	p.shutdownFns = append(p.shutdownFns, mp.Shutdown)

	return p, nil
}

func buildTraceProvider(cfg config.TelemetryConfig, res *resource.Resource, w io.Writer) (*sdktrace.TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}
	// Only stdout is supported for spans; without it spans are sampled
	// but not exported.
	if cfg.Stdout {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

func buildMetricProvider(ctx context.Context, cfg config.TelemetryConfig, res *resource.Resource, w io.Writer) (*sdkmetric.MeterProvider, error) {
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if cfg.Stdout {
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(15*time.Second)),
		))
	}

	if cfg.OTLPEndpoint != "" {
		exp, err := buildOTLPMetricExporter(ctx, cfg.OTLPEndpoint)
		if err != nil {
			return nil, fmt.Errorf("otlp metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(30*time.Second)),
		))
	}

	return sdkmetric.NewMeterProvider(opts...), nil
}

// buildOTLPMetricExporter accepts either host:port (plain HTTP) or a full
// URL.
func buildOTLPMetricExporter(ctx context.Context, endpoint string) (sdkmetric.Exporter, error) {
	if strings.Contains(endpoint, "://") {
		return otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpointURL(endpoint))
	}
	return otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpoint(endpoint),
		otlpmetrichttp.WithInsecure(),
	)
}

// Shutdown flushes all spans and metrics and shuts the providers down.
func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range p.shutdownFns {
		errs = append(errs, fn(ctx))
	}
	p.shutdownFns = nil
	return errors.Join(errs...)
}

// Tracer returns the basicforms tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationScope)
}

// Meter returns the basicforms meter from the global provider.
func Meter() metric.Meter {
	return otel.Meter(instrumentationScope)
}

// Metrics are the instruments recorded by the server.
type Metrics struct {
	FormsRendered       metric.Int64Counter
	RenderDuration      metric.Float64Histogram
	SubmissionsAccepted metric.Int64Counter
	SubmissionsRejected metric.Int64Counter
}

// NewMetrics creates the instruments on m.
func NewMetrics(m metric.Meter) (*Metrics, error) {
	var (
		out Metrics
		err error
	)
	out.FormsRendered, err = m.Int64Counter("basicforms.forms.rendered",
		metric.WithDescription("Forms rendered to HTML"))
	if err != nil {
		return nil, err
	}
	out.RenderDuration, err = m.Float64Histogram("basicforms.render.duration",
		metric.WithDescription("Time spent rendering a form"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	out.SubmissionsAccepted, err = m.Int64Counter("basicforms.submissions.accepted",
		metric.WithDescription("Submissions stored"))
	if err != nil {
		return nil, err
	}
	out.SubmissionsRejected, err = m.Int64Counter("basicforms.submissions.rejected",
		metric.WithDescription("Submissions refused by validation or storage"))
	if err != nil {
		return nil, err
	}
	return &out, nil
}
