package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestEnabledExportsSpansOnShutdown(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	buf := &bytes.Buffer{}
	shutdown, err := Init(context.Background(), Config{Enabled: true, Version: "test", Output: buf})
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "pipeline.run")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "pipeline.run")
	assert.Contains(t, buf.String(), ServiceName)
}
