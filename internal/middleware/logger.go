package middleware

import (
	"database/sql"
	"time"

	"geounity/internal/logging"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	RequestIDHeader = "X-Request-ID"
	slowRequest     = 500 * time.Millisecond
)

// RequestLogger tags the request with an id and logs one line when it ends.
// stats may be nil.
func RequestLogger(stats func() sql.DBStats) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), id))

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		status := c.Writer.Status()
		ev := log.Info()
		switch {
		case status >= 500:
			ev = log.Error()
		case latency > slowRequest:
			ev = log.Warn()
		}
		ev = ev.Str("request_id", id).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("ip", c.ClientIP())
		if latency > slowRequest && stats != nil {
			s := stats()
			ev = ev.Int("db_open", s.OpenConnections).Int("db_in_use", s.InUse).Int64("db_wait_count", s.WaitCount)
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}
		ev.Msg("request")
	}
}
