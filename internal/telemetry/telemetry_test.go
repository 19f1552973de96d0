package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/thetanil/basicforms/internal/config"
)

func TestInitDisabledInstallsNoop(t *testing.T) {
	p, err := Init(context.Background(), config.TelemetryConfig{}, "basicforms", "test", nil)
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	_, span := Tracer().Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
}

func TestInitStdoutExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	p, err := Init(context.Background(), config.TelemetryConfig{Enabled: true, Stdout: true}, "basicforms", "test", &buf)
	require.NoError(t, err)

	_, span := Tracer().Start(context.Background(), "render-form")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "render-form")

	// Leave the global providers as no-ops for other tests.
	_, err = Init(context.Background(), config.TelemetryConfig{}, "basicforms", "test", nil)
	require.NoError(t, err)
}

func TestNewMetricsRecords(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	m, err := NewMetrics(mp.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.FormsRendered.Add(ctx, 2, metric.WithAttributes(attribute.String("form_id", "signup")))
	m.SubmissionsAccepted.Add(ctx, 1)
	m.RenderDuration.Record(ctx, 1.5)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	names := map[string]bool{}
	for _, md := range rm.ScopeMetrics[0].Metrics {
		names[md.Name] = true
	}
	assert.True(t, names["basicforms.forms.rendered"])
	assert.True(t, names["basicforms.submissions.accepted"])
	assert.True(t, names["basicforms.render.duration"])
}
