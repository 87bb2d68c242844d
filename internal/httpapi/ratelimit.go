package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const visitorIdleTimeout = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// loginLimiter throttles requests per client IP.
type loginLimiter struct {
	mutex    sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

func newLoginLimiter(perMinute int) *loginLimiter {
	return &loginLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
		now:      time.Now,
	}
}

func (limiter *loginLimiter) allow(clientIP string) bool {
	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()

	now := limiter.now()
	for ip, seen := range limiter.visitors {
		if now.Sub(seen.lastSeen) > visitorIdleTimeout {
			delete(limiter.visitors, ip)
		}
	}
	current, exists := limiter.visitors[clientIP]
	if !exists {
		current = &visitor{limiter: rate.NewLimiter(limiter.limit, limiter.burst)}
		limiter.visitors[clientIP] = current
	}
	current.lastSeen = now
	return current.limiter.AllowN(now, 1)
}

func (limiter *loginLimiter) middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if !limiter.allow(ctx.ClientIP()) {
			ctx.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse(errorCodeRateLimited, "too many login attempts, try again later"))
			return
		}
		ctx.Next()
	}
}
