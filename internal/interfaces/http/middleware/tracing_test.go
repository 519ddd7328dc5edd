package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func tracedRouter(t *testing.T) (*gin.Engine, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(t.Context()) })

	router := gin.New()
	router.Use(RequestID())
	router.Use(TracingWithConfig(TracingConfig{Enabled: true, ServiceName: "test", TracerProvider: tp}))
	router.Use(SpanErrorMarker())
	router.Use(TenantMiddleware())
	router.Use(TracingAttributeInjector())
	return router, sr
}

func spanAttrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestTracing_SpanCarriesRequestContext(t *testing.T) {
	router, sr := tracedRouter(t)
	router.GET("/api/v1/reconciliation/links", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reconciliation/links?source_key=bank_movement:1", nil)
	req.Header.Set(TenantHeaderKey, "11111111-2222-3333-4444-555555555555")
	req.Header.Set(ActorHeaderKey, "ana")
	req.Header.Set(RequestIDHeader, "req-1")
	serve(router, req)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Contains(t, spans[0].Name(), "/api/v1/reconciliation/links")
	attrs := spanAttrs(spans[0])
	assert.Equal(t, "11111111-2222-3333-4444-555555555555", attrs["tenant_id"].AsString())
	assert.Equal(t, "ana", attrs["actor"].AsString())
	assert.Equal(t, "req-1", attrs["request_id"].AsString())
	assert.NotEqual(t, codes.Error, spans[0].Status().Code)
}

func TestSpanErrorMarker(t *testing.T) {
	tests := []struct {
		status  int
		message string
	}{
		{http.StatusConflict, "Conflict"},
		{http.StatusUnprocessableEntity, "Policy Violation"},
		{http.StatusNotFound, "Not Found"},
		{http.StatusBadRequest, "Client Error"},
		{http.StatusServiceUnavailable, "Internal Server Error"},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			router, sr := tracedRouter(t)
			router.POST("/x", func(c *gin.Context) { c.Status(tt.status) })

			serve(router, httptest.NewRequest(http.MethodPost, "/x", nil))

			spans := sr.Ended()
			require.Len(t, spans, 1)
			assert.Equal(t, codes.Error, spans[0].Status().Code)
			assert.Equal(t, tt.message, spans[0].Status().Description)
		})
	}
}

func TestTracing_Disabled(t *testing.T) {
	router := gin.New()
	router.Use(TracingWithConfig(TracingConfig{Enabled: false}))
	router.Use(SpanErrorMarker())
	router.Use(TracingAttributeInjector())
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	w := serve(router, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
