package otel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders(" api-key = secret ,broken, =novalue,team=cupcakes")
	require.Equal(t, map[string]string{"api-key": "secret", "team": "cupcakes"}, got)
	require.Empty(t, ParseHeaders(""))
}

func TestConfigFromEnvDisabledWithoutEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	cfg := ConfigFromEnv("cupcaked", "test")
	require.False(t, cfg.Traces)
	require.False(t, cfg.Metrics)

	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "false")
	cfg = ConfigFromEnv("cupcaked", "test")
	require.True(t, cfg.Traces)
	require.False(t, cfg.Insecure)
	require.Equal(t, "collector:4318", cfg.Endpoint)
}
