// internal/api/middleware.go
package api

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Corphon/PolyglotRunner/internal/utils"
)

const (
	requestIDKey    = "request_id"
	requestIDHeader = "X-Request-ID"
)

// HTTP 请求指标名
const (
	MetricHTTPRequests        = "http_requests_total"
	MetricHTTPErrors          = "http_errors_total"
	MetricHTTPRequestDuration = "http_request_duration_ms"
	MetricHTTPRateLimited     = "http_rate_limited_total"
)

// RateLimiter 固定窗口限流器，过期条目在访问时顺带清理
type RateLimiter struct {
	visitors  map[string]*Visitor
	lastSweep time.Time
	mu        sync.Mutex
}

// Visitor represents a client with rate limiting data
type Visitor struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		visitors:  make(map[string]*Visitor),
		lastSweep: time.Now(),
	}
}

// sweep removes visitors whose window has expired
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < time.Minute {
		return
	}
	for key, visitor := range rl.visitors {
		if now.After(visitor.Reset) {
			delete(rl.visitors, key)
		}
	}
	rl.lastSweep = now
}

// Allow checks if a visitor is allowed to make a request and returns the header values
func (rl *RateLimiter) Allow(key string, limit int, window time.Duration) (bool, *Visitor) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.sweep(now)

	visitor, exists := rl.visitors[key]
	if !exists || now.After(visitor.Reset) {
		visitor = &Visitor{Limit: limit, Remaining: limit - 1, Reset: now.Add(window)}
		rl.visitors[key] = visitor
		snapshot := *visitor
		return true, &snapshot
	}

	if visitor.Remaining <= 0 {
		snapshot := *visitor
		return false, &snapshot
	}

	visitor.Remaining--
	snapshot := *visitor
	return true, &snapshot
}

// RateLimitMiddleware creates a rate limiting middleware
func RateLimitMiddleware(rl *RateLimiter, limit int, window time.Duration, keyFunc func(*gin.Context) string, metrics *utils.MetricsCollector) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, visitor := rl.Allow(keyFunc(c), limit, window)

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", visitor.Limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", max(visitor.Remaining, 0)))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", visitor.Reset.Unix()))

		if !allowed {
			if metrics != nil {
				metrics.IncrementCounter(MetricHTTPRateLimited)
			}
			NewResponseHelper().Error(c, http.StatusTooManyRequests, ErrorRateLimited, "请求过于频繁")
			c.Abort()
			return
		}

		c.Next()
	}
}

// RateLimitByIP applies rate limiting based on client IP address
func RateLimitByIP(rl *RateLimiter, limit int, window time.Duration, metrics *utils.MetricsCollector) gin.HandlerFunc {
	return RateLimitMiddleware(rl, limit, window, func(c *gin.Context) string {
		return c.ClientIP()
	}, metrics)
}

// RequestID 为每个请求分配ID，客户端提供的 X-Request-ID 优先
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Header(requestIDHeader, requestID)
		c.Next()
	}
}

// RequestLogger 记录每个请求，WebSocket 升级请求只在结束时记录一次
func RequestLogger() gin.HandlerFunc {
	logger := utils.GetLogger()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).String(),
			"client_ip":  c.ClientIP(),
			"request_id": c.GetString(requestIDKey),
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("❌ 请求失败", fields)
		case c.Writer.Status() >= http.StatusBadRequest:
			logger.Warn("⚠️ 请求被拒绝", fields)
		default:
			logger.Debug("📥 请求完成", fields)
		}
	}
}

// RequestMetrics 统计请求数、错误数和耗时
func RequestMetrics(metrics *utils.MetricsCollector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		metrics.IncrementCounter(MetricHTTPRequests)
		if c.Writer.Status() >= http.StatusBadRequest {
			metrics.IncrementCounter(MetricHTTPErrors)
		}
		metrics.RecordHistogram(MetricHTTPRequestDuration, time.Since(start).Milliseconds())
	}
}
