package httpmiddleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Limiter decides whether a source address may run the pipeline.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// GinMiddleware enforces per-IP limits ahead of the submission pipeline.
func GinMiddleware(l Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		if !l.Allow(c.Request.Context(), ip) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit"})
			return
		}
		c.Next()
	}
}

// SimpleTokenBucket is an in-memory limiter for single-instance deployments.
type SimpleTokenBucket struct {
	capacity int
	rate     int
	mu       sync.Mutex
	state    map[string]*bucket
}

type bucket struct {
	tokens int
	last   time.Time
}

// NewSimpleTokenBucket creates a limiter with capacity tokens and rate per minute.
func NewSimpleTokenBucket(capacity, perMinute int) *SimpleTokenBucket {
	if capacity <= 0 {
		capacity = perMinute
	}
	return &SimpleTokenBucket{
		capacity: capacity,
		rate:     perMinute,
		state:    make(map[string]*bucket),
	}
}

// Allow implements Limiter.
func (l *SimpleTokenBucket) Allow(_ context.Context, key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.state[key]
	now := time.Now()
	if !ok {
		b = &bucket{tokens: l.capacity - 1, last: now}
		l.state[key] = b
		return true
	}
	elapsed := now.Sub(b.last).Minutes()
	refill := int(elapsed * float64(l.rate))
	if refill > 0 {
		b.tokens += refill
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
		b.last = now
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// RedisWindow is a fixed-window limiter shared across instances.
type RedisWindow struct {
	client    *redis.Client
	prefix    string
	perWindow int
	window    time.Duration
}

// NewRedisWindow creates a limiter allowing perWindow requests per window.
func NewRedisWindow(client *redis.Client, prefix string, perWindow int, window time.Duration) *RedisWindow {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisWindow{client: client, prefix: prefix, perWindow: perWindow, window: window}
}

// Allow implements Limiter. Fails open on Redis errors so an outage does not
// take submissions down with it.
func (l *RedisWindow) Allow(ctx context.Context, key string) bool {
	bucketKey := l.prefix + ":" + key + ":" + time.Now().UTC().Truncate(l.window).Format("150405")
	count, err := l.client.Incr(ctx, bucketKey).Result()
	if err != nil {
		return true
	}
	if count == 1 {
		l.client.Expire(ctx, bucketKey, l.window)
	}
	return count <= int64(l.perWindow)
}
