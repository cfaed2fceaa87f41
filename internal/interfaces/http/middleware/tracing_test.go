package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/infrastructure/auth"
	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/infrastructure/config"
)

// setupTestTracer sets up a test tracer provider and returns the span recorder.
func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	t.Cleanup(func() {
		_ = tp.Shutdown(t.Context())
		otel.SetTracerProvider(prev)
	})

	return sr
}

func attrValue(attrs []attribute.KeyValue, key string) (string, bool) {
	for _, a := range attrs {
		if string(a.Key) == key {
			return a.Value.Emit(), true
		}
	}
	return "", false
}

func newTracedRouter() *gin.Engine {
	router := gin.New()
	router.Use(RequestID(), TracingWithConfig(TracingConfig{Enabled: true, ServiceName: "test-service"}), SpanAttributes())
	return router
}

func TestTracingWithConfig_Disabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sr := setupTestTracer(t)

	router := gin.New()
	router.Use(TracingWithConfig(TracingConfig{Enabled: false}), SpanAttributes())
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, sr.Ended())
}

func TestTracing_SpanNameAndRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sr := setupTestTracer(t)

	router := newTracedRouter()
	router.GET("/api/v1/etl/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"state": "idle"})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/etl/status", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /api/v1/etl/status", spans[0].Name())

	id, ok := attrValue(spans[0].Attributes(), "request_id")
	require.True(t, ok)
	assert.Equal(t, "req-42", id)
	assert.NotEqual(t, codes.Error, spans[0].Status().Code)
}

func TestTracing_RecordsSubject(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sr := setupTestTracer(t)

	svc := auth.NewJWTService(config.APIConfig{JWTSecret: "tracing-secret", JWTIssuer: "test"})
	token, err := svc.GenerateToken("dashboard", time.Minute, auth.ScopeSyncRead)
	require.NoError(t, err)

	router := newTracedRouter()
	router.GET("/secure", JWTAuthMiddleware(svc), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set(AuthHeaderKey, BearerPrefix+token)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	spans := sr.Ended()
	require.Len(t, spans, 1)
	subject, ok := attrValue(spans[0].Attributes(), "auth.subject")
	require.True(t, ok)
	assert.Equal(t, "dashboard", subject)
}

func TestSpanAttributes_ErrorStatus(t *testing.T) {
	tests := []struct {
		status  int
		message string
	}{
		{http.StatusUnauthorized, "Unauthorized"},
		{http.StatusForbidden, "Forbidden"},
		{http.StatusNotFound, "Not Found"},
		{http.StatusConflict, "Client Error"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			sr := setupTestTracer(t)

			router := newTracedRouter()
			router.POST("/fail", func(c *gin.Context) {
				c.Status(tt.status)
			})

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/fail", nil))

			spans := sr.Ended()
			require.Len(t, spans, 1)
			assert.Equal(t, codes.Error, spans[0].Status().Code)
			assert.Equal(t, tt.message, spans[0].Status().Description)
			code, ok := attrValue(spans[0].Attributes(), "http.status_code")
			require.True(t, ok)
			assert.Equal(t, strconv.Itoa(tt.status), code)
		})
	}
}

func TestSpanAttributes_ServerErrorStatus(t *testing.T) {
	for _, status := range []int{http.StatusInternalServerError, http.StatusServiceUnavailable} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			sr := setupTestTracer(t)

			router := newTracedRouter()
			router.POST("/fail", func(c *gin.Context) {
				c.Status(status)
			})

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/fail", nil))

			spans := sr.Ended()
			require.Len(t, spans, 1)
			assert.Equal(t, codes.Error, spans[0].Status().Code)
			code, ok := attrValue(spans[0].Attributes(), "http.status_code")
			require.True(t, ok)
			assert.Equal(t, strconv.Itoa(status), code)
		})
	}
}
