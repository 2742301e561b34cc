package middleware

import (
	"time"

	"stress-detect-go/internal/core/processor"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// RequestIDHeader wird übernommen, falls der Client ihn mitsendet
const RequestIDHeader = "X-Request-ID"

// RequestID vergibt jeder Anfrage eine ID und legt sie im Request-Context ab
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Writer.Header().Set(RequestIDHeader, id)
		c.Request = c.Request.WithContext(processor.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// Logger protokolliert jede Anfrage über logrus
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(log.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"ip":         c.ClientIP(),
			"latency":    time.Since(start).String(),
			"request_id": processor.RequestID(c.Request.Context()),
		})
		switch {
		case c.Writer.Status() >= 500:
			entry.Error("Request failed")
		case c.Writer.Status() >= 400:
			entry.Info("Request rejected")
		default:
			entry.Debug("Request handled")
		}
	}
}
