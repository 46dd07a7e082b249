package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestEnsureHTTPEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		endpoint string
		want     string
	}{
		{"collector:4318", "http://collector:4318/v1/traces"},
		{"http://collector:4318", "http://collector:4318/v1/traces"},
		{"https://collector:4318/", "https://collector:4318/v1/traces"},
		{"http://collector:4318/v1/traces", "http://collector:4318/v1/traces"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ensureHTTPEndpoint("traces", tc.endpoint), tc.endpoint)
	}
}

func TestSetupOTelSDK_Stdout(t *testing.T) {
	ctx := context.Background()
	stdout := &OpenTelemetryTypeConfig{Exporter: ExporterStdout}

	shutdown, err := SetupOTelSDK(ctx, &OpenTelemetryConfig{
		ServiceName: "hostnode-test",
		Traces:      stdout,
		Metrics:     stdout,
	})
	require.NoError(t, err)

	counter, err := otel.GetMeterProvider().Meter("test").Int64Counter("test.counter")
	require.NoError(t, err)
	counter.Add(ctx, 1)

	assert.NoError(t, shutdown(ctx))
	// A second shutdown has nothing left to stop.
	assert.NoError(t, shutdown(ctx))
}
