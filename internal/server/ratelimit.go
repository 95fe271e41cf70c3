package server

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	jsonwriter "github.com/foliosite/siterelay/internal/json"
	"github.com/foliosite/siterelay/internal/log"
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client address
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	rate     rate.Limit
	burst    int
	now      func() time.Time
}

// NewRateLimiter creates a limiter allowing requestsPerMinute sustained
// requests per client with the given burst. A non-positive rate disables it.
func NewRateLimiter(requestsPerMinute, burst int) *RateLimiter {
	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Limit(float64(requestsPerMinute) / 60)
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*clientLimiter),
		rate:     limit,
		burst:    burst,
		now:      time.Now,
	}
}

// GetLimiter returns the rate limiter for the given identifier
func (rl *RateLimiter) GetLimiter(identifier string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, exists := rl.limiters[identifier]
	if !exists {
		entry = &clientLimiter{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[identifier] = entry
	}
	entry.lastSeen = rl.now()
	return entry.limiter
}

// Prune drops limiters idle for longer than maxIdle and returns how many went
func (rl *RateLimiter) Prune(maxIdle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-maxIdle)
	removed := 0
	for id, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, id)
			removed++
		}
	}
	return removed
}

// Start prunes idle limiters periodically until ctx is done
func (rl *RateLimiter) Start(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := rl.Prune(interval); n > 0 {
					log.LogDebugWithFields("ratelimit", "Pruned idle limiters", map[string]any{
						"removed": n,
					})
				}
			}
		}
	}()
}

// Middleware rejects clients over their budget with 429
func (rl *RateLimiter) Middleware() MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl.rate == rate.Inf {
				next.ServeHTTP(w, r)
				return
			}

			client := clientAddr(r)
			if !rl.GetLimiter(client).Allow() {
				log.LogWarnWithFields("ratelimit", "Rate limit exceeded", map[string]any{
					"client": client,
					"path":   r.URL.Path,
				})
				retryAfter := max(int(math.Ceil(1/float64(rl.rate))), 1)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				jsonwriter.WriteTooManyRequests(w, "Too many requests. Please try again later.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
