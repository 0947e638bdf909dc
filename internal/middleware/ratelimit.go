package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"astreon/backend/internal/storage"
)

// ipLimiters 按客户端 IP 维护独立的令牌桶
type ipLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newIPLimiters(limit rate.Limit, burst int) *ipLimiters {
	return &ipLimiters{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

func (l *ipLimiters) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[ip]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[ip] = limiter
	}
	return limiter
}

// IPRateLimit 单机令牌桶限流（卡密校验等高频接口）
func IPRateLimit(perSecond float64, burst int) gin.HandlerFunc {
	limiters := newIPLimiters(rate.Limit(perSecond), burst)
	return func(c *gin.Context) {
		if !limiters.get(c.ClientIP()).Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"message": "too many requests",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// StoreRateLimit 存储计数限流
//
// 计数落在 RateLimitRepository 上（Redis 或内存），多实例部署时
// 共享计数。用于登录/注册这类必须全局限速的低频接口。
func StoreRateLimit(store storage.RateLimitRepository, name string, max int64, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := name + ":" + c.ClientIP()
		count, err := store.IncrementRateLimit(key, window)
		if err == nil && count > max {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"message": "too many attempts, try again later",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
