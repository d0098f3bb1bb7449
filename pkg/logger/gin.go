package logger

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	headerRequestID = "X-Request-Id"
	ginLoggerKey    = "logger"
)

// Middleware tags every request with a request_id and logs one summary line
// when it completes. The request logger rides on both the gin context and the
// request context, so From(ctx) works below the handlers.
func Middleware(base *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		rid := c.GetHeader(headerRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Header(headerRequestID, rid)

		l := base.With("request_id", rid)
		c.Set(ginLoggerKey, l)
		c.Request = c.Request.WithContext(With(c.Request.Context(), l))

		c.Next()

		logSummary(c, l, time.Since(start))
	}
}

func logSummary(c *gin.Context, l *slog.Logger, took time.Duration) {
	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}
	status := c.Writer.Status()

	attrs := []any{
		"method", c.Request.Method,
		"path", route,
		"status", status,
		"duration_ms", float64(took.Milliseconds()),
		"client_ip", c.ClientIP(),
	}
	// set by the auth middleware on admin routes
	if church := c.GetString("church_id"); church != "" {
		attrs = append(attrs, "church_id", church)
	}

	switch {
	case len(c.Errors) > 0:
		l.Error("request", append(attrs, "errors", c.Errors.String())...)
	case status >= 500:
		l.Warn("request", attrs...)
	default:
		l.Info("request", attrs...)
	}
}

// FromGin returns the request logger, or slog.Default outside Middleware.
func FromGin(c *gin.Context) *slog.Logger {
	if l, ok := c.Value(ginLoggerKey).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}
