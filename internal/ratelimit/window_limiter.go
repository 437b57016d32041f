// Package ratelimit provides request limiting shared across API instances
// through Redis.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/emp-backend/internal/logging"
	"github.com/redis/go-redis/v9"
)

// Default limiter configuration values.
const (
	DefaultWindowSize = time.Second
	DefaultKeyPrefix  = "ratelimit:"
)

// consumeScript increments the client's counter for the window unless that
// would exceed the limit. Returns {allowed, used}.
var consumeScript = redis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local ttl = tonumber(ARGV[2])

	local used = tonumber(redis.call('GET', key) or '0')
	if used + 1 > limit then
		return {0, used}
	end

	used = redis.call('INCR', key)
	if used == 1 then
		redis.call('PEXPIRE', key, ttl)
	end
	return {1, used}
`)

// WindowLimiter allows at most Limit requests per client in each fixed
// window. Counters live in Redis so every instance shares them.
type WindowLimiter struct {
	redis      redis.Cmdable
	limit      int
	windowSize time.Duration
	keyPrefix  string
	now        func() time.Time
}

// WindowLimiterConfig holds configuration for the window limiter.
type WindowLimiterConfig struct {
	// Redis is the Redis client for cross-instance coordination. Required.
	Redis redis.Cmdable

	// Limit is the number of requests allowed per window. Required.
	Limit int

	// WindowSize is the window duration. Default: 1s.
	WindowSize time.Duration

	// KeyPrefix namespaces the counters. Default: "ratelimit:".
	KeyPrefix string
}

// Validate checks if the configuration is valid.
func (c *WindowLimiterConfig) Validate() error {
	if c.Redis == nil {
		return errors.New("redis client is required")
	}
	if c.Limit <= 0 {
		return errors.New("limit must be positive")
	}
	if c.WindowSize < 0 {
		return errors.New("window size cannot be negative")
	}
	return nil
}

// NewWindowLimiter creates a new limiter with the given configuration.
func NewWindowLimiter(cfg *WindowLimiterConfig) (*WindowLimiter, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	windowSize := cfg.WindowSize
	if windowSize == 0 {
		windowSize = DefaultWindowSize
	}

	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}

	return &WindowLimiter{
		redis:      cfg.Redis,
		limit:      cfg.Limit,
		windowSize: windowSize,
		keyPrefix:  keyPrefix,
		now:        time.Now,
	}, nil
}

// WindowForRate returns the window in which burst requests average out to
// rps requests per second.
func WindowForRate(rps, burst int) time.Duration {
	if rps <= 0 || burst <= 0 {
		return DefaultWindowSize
	}
	return time.Duration(float64(burst) / float64(rps) * float64(time.Second))
}

// windowStart returns the start of the window containing now.
func (l *WindowLimiter) windowStart() time.Time {
	return l.now().Truncate(l.windowSize)
}

// key returns the Redis key for a client in the window starting at start.
func (l *WindowLimiter) key(client string, start time.Time) string {
	return l.keyPrefix + client + ":" + strconv.FormatInt(start.UnixMilli(), 10)
}

// TryConsume attempts to take one request from the client's window.
// When denied, waitTime is the time until the next window.
func (l *WindowLimiter) TryConsume(ctx context.Context, client string) (allowed bool, waitTime time.Duration, err error) {
	start := l.windowStart()

	// Keys expire two windows after creation to tolerate clock skew between instances.
	ttl := (2 * l.windowSize).Milliseconds()

	result, err := consumeScript.Run(ctx, l.redis, []string{l.key(client, start)}, l.limit, ttl).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("failed to consume rate limit: %w", err)
	}

	if result[0] == 1 {
		return true, 0, nil
	}
	return false, l.waitTime(start), nil
}

// Allow reports whether the client may make a request now. Redis failures
// let the request through so a cache outage does not take the API down.
func (l *WindowLimiter) Allow(ctx context.Context, client string) bool {
	allowed, _, err := l.TryConsume(ctx, client)
	if err != nil {
		logging.FromContext(ctx).WithError(err).WithField("client", client).Warn("Rate limiter unavailable, allowing request")
		return true
	}
	return allowed
}

// Used returns how many requests the client made in the current window.
func (l *WindowLimiter) Used(ctx context.Context, client string) (int, error) {
	used, err := l.redis.Get(ctx, l.key(client, l.windowStart())).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return used, err
}

// Limit returns the configured requests per window.
func (l *WindowLimiter) Limit() int {
	return l.limit
}

// WindowSize returns the configured window size.
func (l *WindowLimiter) WindowSize() time.Duration {
	return l.windowSize
}

// waitTime returns the time until the window after start begins.
func (l *WindowLimiter) waitTime(start time.Time) time.Duration {
	wait := start.Add(l.windowSize).Sub(l.now())
	if wait < 0 {
		wait = 0
	}
	// Add a small buffer to ensure we're in the new window
	return wait + time.Millisecond
}
