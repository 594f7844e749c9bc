package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kdiawara/branchstock/pkg/ratelimit"
)

// RateLimit applies a best-effort per-client limit. Limiter infrastructure
// failures are logged and the request proceeds; only an actual over-limit
// verdict rejects the call.
func RateLimit(limiter ratelimit.Limiter, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		allowed, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}

		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"category": "validation",
				"error":    "rate limit exceeded",
			})
			return
		}

		c.Next()
	}
}
