package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"coopsync/internal/metrics"
	"coopsync/pkg/logger"
)

// Logger logs every request and observes its latency. Probes and scrapes go
// to debug so they do not drown the access log.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		elapsed := time.Since(start)
		status := c.Writer.Status()
		metrics.RecordHTTP(c.Request.Method, c.FullPath(), status, elapsed)

		l := log.WithContext(c.Request.Context())
		write := l.Infow
		switch {
		case isProbe(c.Request.URL.Path):
			write = l.Debugw
		case status >= 500:
			write = l.Warnw
		}
		write("http request",
			"method", c.Request.Method,
			"route", c.FullPath(),
			"path", c.Request.URL.Path,
			"status", status,
			"latency_ms", elapsed.Milliseconds(),
			"device_id", c.GetHeader(HeaderDeviceID),
			"bytes_in", c.Request.ContentLength,
			"bytes_out", c.Writer.Size(),
			"client_ip", c.ClientIP(),
			"error", c.Errors.ByType(gin.ErrorTypePrivate).String(),
		)
	}
}

func isProbe(path string) bool {
	switch path {
	case "/metrics", "/health/live", "/health/ready":
		return true
	}
	return false
}
