package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"safeflag/internal/dto/resp"
	"safeflag/internal/service"
	"safeflag/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const rateLimitKeyPrefix = "safeflag:ratelimit:"

// tokenBucketScript refills and spends a token bucket atomically.
// ARGV: rate, capacity, now, requested. Returns { allowed, remaining, reset_after }.
var tokenBucketScript = redis.NewScript(`
local tokens_key = KEYS[1]
local ts_key = KEYS[2]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

local ttl = math.ceil((capacity / rate) * 2)

local last_tokens = tonumber(redis.call("get", tokens_key))
if last_tokens == nil then last_tokens = capacity end

local last_ts = tonumber(redis.call("get", ts_key))
if last_ts == nil then last_ts = now end

local delta = math.max(0, now - last_ts)
local filled = math.min(capacity, last_tokens + (delta * rate))

if filled < requested then
    return { 0, filled, (requested - filled) / rate }
end

filled = filled - requested
redis.call("set", tokens_key, filled, "EX", ttl)
redis.call("set", ts_key, now, "EX", ttl)
return { 1, filled, 0 }
`)

type localLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// localLimiters is the fail-open fallback used while redis is unreachable.
type localLimiters struct {
	mu       sync.Mutex
	limiters map[string]*localLimiter
	rate     rate.Limit
	burst    int
}

func newLocalLimiters(r rate.Limit, burst int) *localLimiters {
	return &localLimiters{limiters: make(map[string]*localLimiter), rate: r, burst: burst}
}

func (l *localLimiters) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	// idle buckets are dropped lazily
	for k, v := range l.limiters {
		if now.Sub(v.lastSeen) > 10*time.Minute {
			delete(l.limiters, k)
		}
	}
	if v, ok := l.limiters[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	v := &localLimiter{limiter: rate.NewLimiter(l.rate, l.burst), lastSeen: now}
	l.limiters[key] = v
	return v.limiter
}

// rateLimitSubject keys the bucket on the operator when authenticated, else on the client IP.
func rateLimitSubject(c *gin.Context) string {
	if op := service.GetOperatorInfo(c.Request.Context()); op != nil && op.UserID != "" {
		return "user:" + op.UserID
	}
	return "ip:" + c.ClientIP()
}

// RateLimitMiddleware enforces a token bucket in redis and falls back to an
// in-process limiter when redis is unavailable. A nil client uses the fallback only.
func RateLimitMiddleware(rdb redis.Scripter, requestsPerSecond int) gin.HandlerFunc {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 5
	}
	burst := requestsPerSecond
	fallback := newLocalLimiters(rate.Limit(requestsPerSecond), burst)
	limitHeader := fmt.Sprintf("%d", requestsPerSecond)

	tooMany := func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, resp.Fail("Too Many Requests", "rate limit exceeded", nil))
	}

	return func(c *gin.Context) {
		subject := rateLimitSubject(c)
		c.Header("X-RateLimit-Limit", limitHeader)

		var (
			result any
			err    = redis.ErrClosed
		)
		if rdb != nil {
			keys := []string{rateLimitKeyPrefix + subject + ":tokens", rateLimitKeyPrefix + subject + ":ts"}
			now := float64(time.Now().UnixMicro()) / 1e6
			ctx, cancel := context.WithTimeout(c.Request.Context(), 100*time.Millisecond)
			result, err = tokenBucketScript.Run(ctx, rdb, keys, requestsPerSecond, burst, now, 1).Result()
			cancel()
			if err != nil {
				logger.Warn("redis rate limit failed, using local limiter", zap.Error(err), zap.String("subject", subject))
			}
		}

		if err != nil {
			limiter := fallback.get(subject)
			if !limiter.Allow() {
				c.Header("X-RateLimit-Remaining", "0")
				c.Header("X-RateLimit-Reset", "1")
				tooMany(c)
				return
			}
			c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", int(limiter.Tokens())))
			c.Next()
			return
		}

		resSlice, ok := result.([]any)
		if !ok || len(resSlice) != 3 {
			logger.Error("invalid redis rate limit response", zap.Any("response", result))
			c.Next()
			return
		}

		allowed := toFloat(resSlice[0]) == 1
		remaining := toFloat(resSlice[1])
		resetAfter := toFloat(resSlice[2])

		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", int(remaining)))
		resetTime := time.Now().Add(time.Duration(resetAfter * float64(time.Second)))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", resetTime.Unix()))

		if !allowed {
			tooMany(c)
			return
		}
		c.Next()
	}
}

func toFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int64:
		return float64(val)
	default:
		return 0
	}
}
