// 包 middleware：HTTP 入口中间件
package middleware

import (
	"net/http"
	"sync"
	"time"

	"geozone-api/internal/logger"
)

// 文档注释：令牌桶限流（每秒）
// 背景：突发查询会穿透候选缓存直达数据库；入口按固定速率放行。
// 约束：不排队，超额请求直接返回 429；每个自然秒补满一次。
type TokenBucket struct {
	capacity int
	tokens   int
	lastSec  int64
	mu       sync.Mutex
	now      func() time.Time
}

func NewTokenBucket(qps int) *TokenBucket {
	if qps <= 0 {
		qps = 1
	}
	tb := &TokenBucket{capacity: qps, tokens: qps, now: time.Now}
	tb.lastSec = tb.now().Unix()
	return tb
}

// Allow：取一个令牌
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	sec := tb.now().Unix()
	if tb.lastSec != sec {
		tb.lastSec = sec
		tb.tokens = tb.capacity
	}
	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// RateLimit：qps <= 0 时不限流
func RateLimit(qps int) func(http.Handler) http.Handler {
	if qps <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	tb := NewTokenBucket(qps)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !tb.Allow() {
				logger.L().Debug("rate_limited", "path", r.URL.Path, "remote", r.RemoteAddr)
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Recover：处理器 panic 时返回 500 并记录日志，避免单个请求拖垮进程
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				logger.L().Error("handler_panic", "path", r.URL.Path, "panic", v)
				w.WriteHeader(http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
