package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	// ServiceName is the name of the service for trace identification.
	ServiceName string
	// Enabled controls whether tracing is active.
	Enabled bool
}

// DefaultTracingConfig returns default tracing configuration.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName: "prohandel-etl",
		Enabled:     true,
	}
}

// Tracing returns OpenTelemetry tracing middleware with default configuration.
func Tracing() gin.HandlerFunc {
	return TracingWithConfig(DefaultTracingConfig())
}

// TracingWithConfig returns otelgin middleware. The span name follows the
// format "HTTP METHOD route_pattern", e.g. "POST /api/v1/etl/sync-full".
// Place SpanAttributes directly after it to enrich the span.
func TracingWithConfig(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	return otelgin.Middleware(cfg.ServiceName)
}

// SpanAttributes enriches the request span once the handler chain has run:
//   - request_id: set by RequestID
//   - auth.subject: set by the JWT middleware on protected routes
//
// Client errors mark the span with codes.Error and a short description.
// otelgin sets the status of 5xx responses itself after this runs.
func SpanAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}
		enrichSpan(c, span)
		markSpanStatus(span, c.Writer.Status())
	}
}

func enrichSpan(c *gin.Context, span trace.Span) {
	if requestID := GetRequestID(c); requestID != "" {
		span.SetAttributes(attribute.String("request_id", requestID))
	}
	if subject := GetJWTSubject(c); subject != "" {
		span.SetAttributes(attribute.String("auth.subject", subject))
	}
}

func markSpanStatus(span trace.Span, statusCode int) {
	if statusCode < http.StatusBadRequest {
		return
	}
	span.SetAttributes(attribute.Int("http.status_code", statusCode))
	if statusCode >= http.StatusInternalServerError {
		return
	}

	var errorMessage string
	switch {
	case statusCode == http.StatusUnauthorized:
		errorMessage = "Unauthorized"
	case statusCode == http.StatusForbidden:
		errorMessage = "Forbidden"
	case statusCode == http.StatusNotFound:
		errorMessage = "Not Found"
	default:
		errorMessage = "Client Error"
	}

	span.SetStatus(codes.Error, errorMessage)
}
