// Package middleware provides the gin middleware chain shared by every
// route: request-id tagged structured logging and a fixed-window rate
// limiter (ulule/limiter), grounded on the teacher's
// internal/api/middleware/security.go chain-of-gin.HandlerFunc shape. The
// chain has no authentication middleware and no slot for one.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ulule/limiter/v3"
	ginlimiter "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/hedgeengine/internal/logging"
)

const requestIDHeader = "X-Request-ID"

// RequestID assigns or propagates a request id and attaches it to the gin
// context for downstream handlers to pull a request-scoped logger from.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

// AccessLog logs one structured line per request, tagged with the request
// id RequestID attached.
func AccessLog(log logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		id, _ := c.Get("request_id")
		log.Info("http request",
			zap.String("request_id", toString(id)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func toString(v interface{}) string {
	s, _ := v.(string)
	return s
}

// RateLimit builds a fixed-window limiter of rate requests per period,
// grounded on the teacher's github.com/ulule/limiter/v3 dependency, backed
// by an in-memory store since rate limiting is per-instance here rather
// than cluster-wide.
func RateLimit(rate int64, period time.Duration) gin.HandlerFunc {
	store := memory.NewStore()
	limiterInstance := limiter.New(store, limiter.Rate{Period: period, Limit: rate})
	mw := ginlimiter.NewMiddleware(limiterInstance)
	return mw
}
