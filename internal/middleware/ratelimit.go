package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	pkgredis "github.com/smartbrief/core/internal/pkg/redis"
	"github.com/smartbrief/core/internal/pkg/response"
	"go.uber.org/zap"
)

const rateLimitWindow = time.Minute

// RateLimit caps credit-consuming requests per user and minute. It must run
// after Auth. Without redis, or with perMinute <= 0, it lets everything through.
func RateLimit(rc *pkgredis.Client, perMinute int, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := CurrentUserID(c)
		if !rc.Enabled() || perMinute <= 0 || userID == "" {
			c.Next()
			return
		}

		window := time.Now().Unix() / int64(rateLimitWindow/time.Second)
		key := fmt.Sprintf("smartbrief:rate_limit:%s:%d", userID, window)

		count, err := rc.IncrWindow(c.Request.Context(), key, rateLimitWindow+time.Second)
		if err != nil {
			log.Warn("rate limit check failed", zap.String("user_id", userID), zap.Error(err))
			c.Next()
			return
		}

		if count > int64(perMinute) {
			c.Header("Retry-After", strconv.Itoa(int(rateLimitWindow/time.Second)))
			response.TooManyRequests(c, "Too many requests, please slow down")
			return
		}
		c.Next()
	}
}
