package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ds124wfegd/imagecaption/internal/pkg/redis"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RateLimit allows limit requests per client IP within each window. When
// the counter backend fails the request is let through.
func RateLimit(counter redis.Counter, limit int64, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if counter == nil || limit <= 0 {
			c.Next()
			return
		}

		count, err := counter.Incr(c.Request.Context(), c.ClientIP(), window)
		if err != nil {
			logrus.WithError(err).Warn("Rate limiter unavailable")
			c.Next()
			return
		}

		remaining := max(limit-count, 0)
		c.Header("X-RateLimit-Limit", strconv.FormatInt(limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > limit {
			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded. Try again later"})
			return
		}
		c.Next()
	}
}
