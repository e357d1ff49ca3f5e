package middleware

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/iliyamo/recital-program/internal/config"
)

var limiterScript = redis.NewScript(`
	local key = KEYS[1]
	local now_ms = tonumber(ARGV[1])
	local capacity = tonumber(ARGV[2])
	local refill_tokens = tonumber(ARGV[3])
	local interval_ms = tonumber(ARGV[4])
	local ttl_seconds = tonumber(ARGV[5])

	local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
	local tokens = tonumber(state[1])
	local last_refill = tonumber(state[2])

	if tokens == nil or last_refill == nil then
		tokens = capacity
		last_refill = now_ms
	end

	if interval_ms > 0 and refill_tokens > 0 then
		local elapsed = math.max(0, now_ms - last_refill)
		local intervals = math.floor(elapsed / interval_ms)
		if intervals > 0 then
			tokens = math.min(capacity, tokens + (intervals * refill_tokens))
			last_refill = last_refill + (intervals * interval_ms)
		end
	end

	local allowed = 0
	local retry_after_ms = 0
	if tokens > 0 then
		allowed = 1
		tokens = tokens - 1
	else
		retry_after_ms = math.max(0, interval_ms - (now_ms - last_refill))
	end

	redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
	redis.call('EXPIRE', key, ttl_seconds)

	return { allowed, tokens, retry_after_ms }
`)

var errScriptResult = errors.New("ratelimit: unexpected script result")

// decision is the outcome of one token draw.
type decision struct {
	allowed   bool
	remaining int64
	retry     time.Duration
}

type bucket interface {
	take(ctx context.Context, key string) (decision, error)
}

// NewTokenBucket limits requests per key (see RateLimitConfig.KeyStrategy).
// Buckets live in Redis when rdb is set and in process memory otherwise.
// Redis failures let the request through.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, logger *log.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	if logger == nil {
		logger = log.Default()
	}
	var b bucket
	if rdb != nil {
		b = redisBucket{cfg: cfg, rdb: rdb}
	} else {
		b = newLocalBucket(cfg)
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := buildRateKey(cfg, c)
			d, err := b.take(c.Request().Context(), key)
			if err != nil {
				if cfg.Debug {
					logger.Warn("rate limit check failed", "key", key, "err", err)
				}
				return next(c)
			}

			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(d.remaining, 10))
			if !d.allowed {
				secs := int(math.Ceil(d.retry.Seconds()))
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				if cfg.Debug {
					logger.Info("rate limited", "key", key, "retry", d.retry)
				}
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":       "too_many_requests",
					"message":     "rate limit exceeded",
					"retry_after": secs,
				})
			}
			if cfg.Debug {
				c.Response().Header().Set("X-RateLimit-Key", key)
			}
			return next(c)
		}
	}
}

type redisBucket struct {
	cfg config.RateLimitConfig
	rdb *redis.Client
}

func (r redisBucket) take(ctx context.Context, key string) (decision, error) {
	vals, err := limiterScript.Run(ctx, r.rdb, []string{key},
		time.Now().UnixMilli(),
		r.cfg.Capacity,
		r.cfg.RefillTokens,
		r.cfg.RefillInterval.Milliseconds(),
		int64(r.cfg.TTL/time.Second),
	).Int64Slice()
	if err != nil {
		return decision{}, err
	}
	if len(vals) != 3 {
		return decision{}, errScriptResult
	}
	return decision{
		allowed:   vals[0] == 1,
		remaining: vals[1],
		retry:     time.Duration(vals[2]) * time.Millisecond,
	}, nil
}

// localBucket keeps one rate.Limiter per key and forgets keys idle for
// longer than cfg.TTL.
type localBucket struct {
	cfg   config.RateLimitConfig
	every rate.Limit

	mu       sync.Mutex
	limiters map[string]*localEntry
	swept    time.Time
}

type localEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

func newLocalBucket(cfg config.RateLimitConfig) *localBucket {
	return &localBucket{
		cfg:      cfg,
		every:    rate.Every(cfg.RefillInterval / time.Duration(cfg.RefillTokens)),
		limiters: make(map[string]*localEntry),
		swept:    time.Now(),
	}
}

func (l *localBucket) take(_ context.Context, key string) (decision, error) {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.swept) > l.cfg.TTL {
		for k, e := range l.limiters {
			if now.Sub(e.seen) > l.cfg.TTL {
				delete(l.limiters, k)
			}
		}
		l.swept = now
	}
	e, ok := l.limiters[key]
	if !ok {
		e = &localEntry{lim: rate.NewLimiter(l.every, l.cfg.Capacity)}
		l.limiters[key] = e
	}
	e.seen = now

	r := e.lim.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return decision{allowed: false, retry: delay}, nil
	}
	return decision{allowed: true, remaining: int64(e.lim.TokensAt(now))}, nil
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	uid := subjectOf(c)
	route := c.Request().Method + " " + c.Path()

	parts := []string{cfg.Prefix}
	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		parts = append(parts, "ip", ip)
	case "user":
		parts = append(parts, "user", uid)
	case "route":
		parts = append(parts, "route", route)
	case "ip_user":
		parts = append(parts, "ip", ip, "user", uid)
	case "ip_route":
		parts = append(parts, "ip", ip, "route", route)
	case "user_route":
		parts = append(parts, "user", uid, "route", route)
	default:
		parts = append(parts, "ip", ip, "user", uid, "route", route)
	}
	return strings.Join(parts, ":")
}
