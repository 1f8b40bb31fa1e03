package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/smarttraffic/console/internal/media"
	"github.com/smarttraffic/console/internal/telemetry"
)

func TestInit_Disabled(t *testing.T) {
	ctx := context.Background()

	provider, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "test-service",
		ServiceVersion: "1.0.0",
		Environment:    "test",
		OTLPEndpoint:   "localhost:4317",
		Enabled:        false,
	})

	require.NoError(t, err)
	assert.NotNil(t, provider)
	assert.NotNil(t, provider.Tracer)
	assert.NotNil(t, provider.Meter)

	// Noop provider should have nil TracerProvider and MeterProvider
	assert.Nil(t, provider.TracerProvider)
	assert.Nil(t, provider.MeterProvider)

	assert.NoError(t, provider.Shutdown(ctx))
}

func TestProvider_Shutdown_NilProviders(t *testing.T) {
	provider := &telemetry.Provider{}
	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestNewConsoleMetrics_GlobalMeter(t *testing.T) {
	m, err := telemetry.NewConsoleMetrics(nil)
	require.NoError(t, err)

	// Recording against the noop global meter must not panic.
	m.RecordCycle(context.Background(), time.Second, true)
	m.RecordFeedPhase(context.Background(), media.PhaseReady)
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumFor(t *testing.T, data metricdata.Aggregation, key, value string) int64 {
	t.Helper()
	sum, ok := data.(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			total += dp.Value
		}
	}
	return total
}

func TestConsoleMetrics_Records(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	m, err := telemetry.NewConsoleMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordCycle(ctx, 20*time.Millisecond, true)
	m.RecordCycle(ctx, 30*time.Millisecond, false)
	m.RecordCycle(ctx, 10*time.Millisecond, true)
	m.RecordCommand(ctx, "set_signal", true)
	m.RecordCommand(ctx, "set_auto_mode", false)
	m.RecordFeedLoad(ctx, 5*time.Millisecond, true)
	m.RecordFeedPhase(ctx, media.PhaseError)
	m.RecordFeedPhase(ctx, media.PhaseError)

	data := collect(t, reader)
	assert.Equal(t, int64(2), sumFor(t, data["traffic.sync.cycles"], "outcome", "success"))
	assert.Equal(t, int64(1), sumFor(t, data["traffic.sync.cycles"], "outcome", "failure"))
	assert.Equal(t, int64(1), sumFor(t, data["traffic.commands"], "command", "set_signal"))
	assert.Equal(t, int64(1), sumFor(t, data["media.feed.loads"], "outcome", "success"))
	assert.Equal(t, int64(2), sumFor(t, data["media.feed.phase.transitions"], "phase", "error"))

	hist, ok := data["traffic.sync.cycle.duration"].(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(3), count)
}
