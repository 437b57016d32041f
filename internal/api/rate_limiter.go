package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	apperrors "github.com/emp-backend/internal/errors"
	"golang.org/x/time/rate"
)

// DefaultLimiterIdleTTL is how long an unused client limiter is kept
const DefaultLimiterIdleTTL = 10 * time.Minute

// Limiter decides whether a client may make another request
type Limiter interface {
	Allow(ctx context.Context, client string) bool
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter manages per-client rate limiting for API requests within
// this process
type RateLimiter struct {
	limiters map[string]*limiterEntry
	mu       sync.Mutex

	limit     rate.Limit
	burstSize int

	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter creates a new rate limiter. A non-positive rps disables
// limiting; a non-positive burst defaults to rps.
func NewRateLimiter(rps, burst int) *RateLimiter {
	if burst <= 0 {
		burst = rps
	}
	return &RateLimiter{
		limiters:  make(map[string]*limiterEntry),
		limit:     rate.Limit(rps),
		burstSize: burst,
		idleTTL:   DefaultLimiterIdleTTL,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

// Enabled reports whether requests are limited at all
func (rl *RateLimiter) Enabled() bool {
	return rl.limit > 0
}

// Len returns the number of clients currently tracked
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// getLimiter returns the rate limiter for a client. Must hold rl.mu.
func (rl *RateLimiter) getLimiter(key string, now time.Time) *rate.Limiter {
	entry, exists := rl.limiters[key]
	if !exists {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.limit, rl.burstSize)}
		rl.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

// sweep drops limiters idle for longer than idleTTL. Must hold rl.mu.
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < rl.idleTTL {
		return
	}
	for key, entry := range rl.limiters {
		if now.Sub(entry.lastSeen) >= rl.idleTTL {
			delete(rl.limiters, key)
		}
	}
	rl.lastSweep = now
}

// Allow reports whether the client may make a request now
func (rl *RateLimiter) Allow(ctx context.Context, key string) bool {
	if !rl.Enabled() {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)
	return rl.getLimiter(key, now).AllowN(now, 1)
}

// TrustedProxies holds the networks whose X-Forwarded-For headers are
// believed
type TrustedProxies []*net.IPNet

// ParseTrustedProxies parses IP addresses and CIDR ranges
func ParseTrustedProxies(entries []string) (TrustedProxies, error) {
	var out TrustedProxies
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", entry)
			}
			bits := 8 * net.IPv4len
			if ip.To4() == nil {
				bits = 8 * net.IPv6len
			}
			out = append(out, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, network, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		out = append(out, network)
	}
	return out, nil
}

func (p TrustedProxies) contains(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, network := range p {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// clientKey identifies the caller by its remote IP. X-Forwarded-For is only
// read when the peer is a trusted proxy, and then the rightmost hop that is
// not itself a trusted proxy is used.
func (p TrustedProxies) clientKey(r *http.Request) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	if len(p) == 0 || !p.contains(peer) {
		return peer
	}

	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if net.ParseIP(hop) == nil {
			// Garbage in the chain ends what can be believed.
			return peer
		}
		if !p.contains(hop) {
			return hop
		}
	}
	return peer
}

// RateLimitMiddleware creates a middleware that enforces rate limiting.
// limit is only reported to clients.
func RateLimitMiddleware(limiter Limiter, limit float64, proxies TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(r.Context(), proxies.clientKey(r)) {
				respondError(w, r, apperrors.NewRateLimitError(limit))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
