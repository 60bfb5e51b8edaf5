package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDKey = "request_id"

// RequestIDMiddleware 为每个请求分配一个追踪 id。
// 客户端带了 X-Request-ID 就沿用，否则生成新的 uuid，
// 该 id 会回写到响应头并出现在这次请求的所有日志条目里。
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Writer.Header().Set("X-Request-ID", id)
		c.Next()
	}
}

// tokenBucket 是令牌桶限流器：按固定速率生成令牌，允许不超过桶容量的突发。
type tokenBucket struct {
	rate     float64 // 每秒生成的令牌数
	capacity float64 // 桶容量（突发上限）
	tokens   float64
	last     time.Time
	mu       sync.Mutex
}

func newTokenBucket(rate float64, burst int) *tokenBucket {
	return &tokenBucket{
		rate:     rate,
		capacity: float64(burst),
		tokens:   float64(burst),
		last:     time.Now(),
	}
}

// allow 先按经过的时间补充令牌，再尝试消耗一个。
func (tb *tokenBucket) allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	tb.tokens += now.Sub(tb.last).Seconds() * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.last = now

	if tb.tokens < 1 {
		return false
	}
	tb.tokens--
	return true
}

// RateLimitMiddleware 对所有路由做全局限流，超限请求返回 429。
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	if burst < 1 {
		burst = 1
	}
	bucket := newTokenBucket(rps, burst)
	return func(c *gin.Context) {
		if !bucket.allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too Many Requests"})
			return
		}
		c.Next()
	}
}

// requestID 从上下文取出当前请求的追踪 id。
func requestID(c *gin.Context) string {
	if v, ok := c.Get(requestIDKey); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
