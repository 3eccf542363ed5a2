package log

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// ContextKey type for context keys
type ContextKey string

const (
	// LoggerContextKey is the context key for the logger
	LoggerContextKey ContextKey = "logger"

	// RequestIDHeader carries the request ID in and out of the server.
	RequestIDHeader = "X-Request-ID"
)

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

// FromContext extracts a logger from the request context
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	return &Logger{
		Logger:    slog.Default(),
		component: "unknown",
	}
}

// Middleware attaches a request-scoped logger carrying the request ID to the
// request context, then logs the request on completion at a level matching
// the status code.
func Middleware(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = GenerateRequestID()
		}
		c.Header(RequestIDHeader, requestID)

		reqLogger := logger.WithComponent(ComponentHTTP).With(FieldRequestID, requestID)
		c.Request = c.Request.WithContext(WithLogger(c.Request.Context(), reqLogger))

		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		if status >= 500 {
			level = slog.LevelError
		} else if status >= 400 {
			level = slog.LevelWarn
		}

		fields := NewFields().
			WithHTTPRequest(c.Request.Method, c.Request.URL.Path, c.Request.URL.RawQuery, c.Request.UserAgent()).
			WithHTTPResponse(status, time.Since(start).Milliseconds())
		fields[FieldClientIP] = c.ClientIP()
		if len(c.Errors) > 0 {
			fields[FieldError] = c.Errors.String()
		}

		reqLogger.Logger.Log(c.Request.Context(), level, "Request completed",
			append([]any{FieldComponent, ComponentHTTP}, fields.ToSlice()...)...)
	}
}

// GenerateRequestID creates a unique request ID for tracing
func GenerateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}
