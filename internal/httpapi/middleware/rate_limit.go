package middleware

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/video-factory/internal/common"
)

type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (ok bool, remaining int, reset time.Duration, err error)
}

// RateLimit allows perMinute requests per client per minute. The client is
// the token subject when authenticated, the remote IP otherwise. A nil
// limiter or a limiter error lets the request through.
func RateLimit(l Limiter, perMinute int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil || perMinute <= 0 {
			c.Next()
			return
		}

		key := c.ClientIP()
		if sub := c.GetString(SubjectKey); sub != "" {
			key = "sub:" + sub
		}

		ok, remaining, reset, err := l.Allow(c.Request.Context(), key, perMinute, time.Minute)
		if err != nil {
			log.Printf("[http] rate limiter unavailable err=%v", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(perMinute))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.Itoa(int(reset.Seconds())))
		if !ok {
			common.Fail(c, http.StatusTooManyRequests, 42900, "rate limit exceeded")
			return
		}
		c.Next()
	}
}
