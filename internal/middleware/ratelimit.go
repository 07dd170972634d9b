package middleware

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/eventplanner/backend/internal/auth"
	"github.com/eventplanner/backend/pkg/response"
)

// Rule is a named request budget.
type Rule struct {
	Name   string
	Limit  int
	Window time.Duration
	ByUser bool // key on the authenticated user instead of the client IP
}

// Budgets applied to the abuse-prone endpoints.
var (
	RuleRegister       = Rule{Name: "register", Limit: 5, Window: time.Hour}
	RuleLogin          = Rule{Name: "login", Limit: 10, Window: 15 * time.Minute}
	RuleForgotPassword = Rule{Name: "forgot_password", Limit: 3, Window: time.Hour}
	RuleInvitations    = Rule{Name: "invitations", Limit: 10, Window: time.Hour, ByUser: true}
	RuleChat           = Rule{Name: "chat", Limit: 30, Window: time.Hour, ByUser: true}
)

// Decision is the outcome of a limiter check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter counts requests per key in a sliding window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

// RateLimit returns a middleware enforcing rule with limiter. Limiter failures let the request through.
func RateLimit(limiter Limiter, rule Rule, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ratelimit:" + rule.Name + ":ip:" + c.ClientIP()
		if rule.ByUser {
			if id, ok := auth.CurrentUserID(c); ok {
				key = "ratelimit:" + rule.Name + ":user:" + id.String()
			}
		}

		d, err := limiter.Allow(c.Request.Context(), key, rule.Limit, rule.Window)
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.String("rule", rule.Name), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

		if !d.Allowed {
			retryAfter := int(time.Until(d.ResetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			response.TooManyRequests(c, fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", retryAfter))
			c.Abort()
			return
		}
		c.Next()
	}
}

// MemoryLimiter keeps request timestamps in process memory. Use it for single-instance deployments.
type MemoryLimiter struct {
	mu       sync.Mutex
	hits     map[string][]time.Time
	cleanup  time.Duration
	maxAge   time.Duration
	now      func() time.Time
	stopChan chan struct{}
}

// NewMemoryLimiter creates a MemoryLimiter and starts its cleanup loop.
func NewMemoryLimiter(cleanup time.Duration) *MemoryLimiter {
	if cleanup == 0 {
		cleanup = 5 * time.Minute
	}
	l := &MemoryLimiter{
		hits:     make(map[string][]time.Time),
		cleanup:  cleanup,
		maxAge:   24 * time.Hour,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Stop stops the cleanup goroutine.
func (l *MemoryLimiter) Stop() {
	close(l.stopChan)
}

func (l *MemoryLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanup)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.cleanupExpired()
		case <-l.stopChan:
			return
		}
	}
}

func (l *MemoryLimiter) cleanupExpired() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.maxAge)
	for key, ts := range l.hits {
		if len(ts) == 0 || ts[len(ts)-1].Before(cutoff) {
			delete(l.hits, key)
		}
	}
}

// Allow records a hit for key unless limit hits already fall inside window.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-window)
	ts := l.hits[key]
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	ts = ts[i:]

	if len(ts) >= limit {
		l.hits[key] = ts
		return Decision{Allowed: false, Remaining: 0, ResetAt: ts[0].Add(window)}, nil
	}
	ts = append(ts, now)
	l.hits[key] = ts
	return Decision{Allowed: true, Remaining: limit - len(ts), ResetAt: ts[0].Add(window)}, nil
}

// RedisLimiter shares the sliding window across instances through a sorted set per key.
type RedisLimiter struct {
	client *redis.Client
}

// NewRedisLimiter creates a RedisLimiter.
func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client}
}

// Allow implements Limiter. A rejected hit is removed again so it does not extend the window.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	now := time.Now()
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + uuid.NewString()[:8]

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(now.Add(-window).UnixMilli(), 10))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: member})
	card := pipe.ZCard(ctx, key)
	oldest := pipe.ZRangeWithScores(ctx, key, 0, 0)
	pipe.PExpire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("rate limit pipeline: %w", err)
	}

	resetAt := now.Add(window)
	if z := oldest.Val(); len(z) > 0 {
		resetAt = time.UnixMilli(int64(z[0].Score)).Add(window)
	}
	count := int(card.Val())
	if count > limit {
		if err := l.client.ZRem(ctx, key, member).Err(); err != nil {
			return Decision{}, fmt.Errorf("rate limit rollback: %w", err)
		}
		return Decision{Allowed: false, Remaining: 0, ResetAt: resetAt}, nil
	}
	return Decision{Allowed: true, Remaining: limit - count, ResetAt: resetAt}, nil
}
