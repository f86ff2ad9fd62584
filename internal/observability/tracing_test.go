// File: internal/observability/tracing_test.go
package observability

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/xkilldash9x/dialtone/internal/config"
)

func TestInitTracing_Disabled(t *testing.T) {
	before := otel.GetTracerProvider()

	shutdown, err := InitTracing(config.TracingConfig{Enabled: false, Output: "/nonexistent/dir/spans.json"})
	require.NoError(t, err, "a disabled pipeline never touches its output")
	assert.True(t, before == otel.GetTracerProvider(), "no provider is installed")
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitTracing_ExportsSpansToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spans.json")
	before := otel.GetTracerProvider()

	shutdown, err := InitTracing(config.TracingConfig{
		Enabled:     true,
		Output:      path,
		ServiceName: "dialtone-test",
		SampleRatio: 1,
	})
	require.NoError(t, err)

	ctx, parent := StartOperation(context.Background(), "orchestrator.Scan", attribute.String("scan.tier", "deep"))
	_, child := StartOperation(ctx, "fetcher.Fetch", attribute.String("source.id", "spam-reports"))
	FinishOperation(child, errors.New("status 503"))
	FinishOperation(parent, nil, attribute.String("scan.state", "completed"))

	require.NoError(t, shutdown(context.Background()))
	assert.True(t, before == otel.GetTracerProvider(), "shutdown restores the previous provider")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(raw)
	assert.Contains(t, out, `"Name":"orchestrator.Scan"`)
	assert.Contains(t, out, `"Name":"fetcher.Fetch"`)
	assert.Contains(t, out, "spam-reports")
	assert.Contains(t, out, "status 503")
	assert.Contains(t, out, "dialtone-test")
}

func TestInitTracing_BadOutput(t *testing.T) {
	_, err := InitTracing(config.TracingConfig{
		Enabled:     true,
		Output:      filepath.Join(t.TempDir(), "missing", "spans.json"),
		SampleRatio: 1,
	})
	assert.ErrorContains(t, err, "failed to open trace output")
}

func TestNewTracerProvider_SampleRatio(t *testing.T) {
	var buf bytes.Buffer
	tp, err := NewTracerProvider(config.TracingConfig{SampleRatio: 0}, &buf)
	require.NoError(t, err)

	_, span := tp.Tracer(TracerName).Start(context.Background(), "engine.Dispatch")
	span.End()
	require.NoError(t, tp.Shutdown(context.Background()))
	assert.Empty(t, buf.String(), "a zero ratio samples nothing")

	buf.Reset()
	tp, err = NewTracerProvider(config.TracingConfig{SampleRatio: 1}, &buf)
	require.NoError(t, err)
	_, span = tp.Tracer(TracerName).Start(context.Background(), "engine.Dispatch")
	span.End()
	require.NoError(t, tp.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "engine.Dispatch")
	assert.Contains(t, buf.String(), `"service.name"`)
}
