package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collectSums(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	totals := make(map[string]int64)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				totals[m.Name] += dp.Value
			}
		}
	}
	return totals
}

func TestPipelineMetrics_Counts(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	metrics, err := NewPipelineMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordIntent(ctx, "planned")
	metrics.RecordIntent(ctx, "applied")
	metrics.RecordStep(ctx, "graph.users.create", "done")
	metrics.RecordSynthesis(ctx, 1, "invalid")
	metrics.RecordSynthesis(ctx, 2, "valid")

	totals := collectSums(t, reader)
	assert.Equal(t, int64(2), totals["stackops.intents.total"])
	assert.Equal(t, int64(1), totals["stackops.steps.total"])
	assert.Equal(t, int64(2), totals["stackops.synthesis.attempts"])
}

func TestPipelineMetrics_NilIsSafe(t *testing.T) {
	var metrics *PipelineMetrics
	assert.NotPanics(t, func() {
		metrics.RecordIntent(context.Background(), "planned")
		metrics.RecordStep(context.Background(), "graph.users.disable", "error")
		metrics.RecordSynthesis(context.Background(), 1, "valid")
	})
}

func TestNew_DisabledUsesGlobalProviders(t *testing.T) {
	provider, err := New(context.Background(), Config{Enabled: false})
	require.NoError(t, err)

	assert.NotNil(t, provider.Tracer())
	assert.NotNil(t, provider.Meter())
	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestNew_EnabledBuildsProviders(t *testing.T) {
	provider, err := New(context.Background(), Config{
		Enabled:        true,
		ServiceName:    "stackops-test",
		ServiceVersion: "test",
		Environment:    "test",
		OTLPEndpoint:   "127.0.0.1:4317",
		Insecure:       true,
		SampleRate:     1.0,
		ExportInterval: time.Hour,
	})
	require.NoError(t, err)
	require.NotNil(t, provider)

	assert.NotNil(t, provider.Tracer())
	metrics, err := NewPipelineMetrics(provider.Meter())
	require.NoError(t, err)
	assert.NotNil(t, metrics)

	// no collector is listening, so the final flush may fail
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = provider.Shutdown(ctx)
}
