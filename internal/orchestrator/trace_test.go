package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ai-gateway/chatstream-go/internal/sse"
)

func spanAttrs(s sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := map[attribute.Key]attribute.Value{}
	for _, kv := range s.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestSpanPerRun(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)).Tracer("test")

	r, err := New(backendURL,
		WithFetch[string](respond(sse.ContentType, "data: a\n\ndata: b\n\n")),
		WithTracer[string](tracer),
	)
	require.NoError(t, err)
	r.Wait()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	attrs := spanAttrs(spans[0])
	assert.Equal(t, "chatstream.request", spans[0].Name())
	assert.Equal(t, int64(2), attrs["chunks"].AsInt64())
	assert.Equal(t, "succeeded", attrs["outcome"].AsString())
	assert.NotEmpty(t, attrs["request.id"].AsString())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
}

func TestSpanRecordsFailure(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)).Tracer("test")

	r, err := New(backendURL,
		WithFetch[string](respond("image/png", "x")),
		WithTracer[string](tracer),
	)
	require.NoError(t, err)
	r.Wait()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "ConfigurationError", spanAttrs(spans[0])["outcome"].AsString())
}
