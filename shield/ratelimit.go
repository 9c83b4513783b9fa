package shield

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/templio/kit"
)

// RateLimitConfig defines a fixed-window limit for one named rule.
type RateLimitConfig struct {
	MaxRequests   int  `yaml:"max_requests"`
	WindowSeconds int  `yaml:"window_seconds"`
	Enabled       bool `yaml:"enabled"`
}

type bucket struct {
	count   int
	resetAt time.Time
}

// RateLimiter provides per-caller, per-rule rate limiting. The caller is the
// session user when kit.GetUserID finds one, otherwise the client IP.
// Expired buckets are garbage collected by StartGC.
type RateLimiter struct {
	mu      sync.Mutex
	rules   map[string]RateLimitConfig
	buckets map[string]*bucket
	now     func() time.Time
}

// NewRateLimiter creates a limiter with the given rules, keyed by rule name.
func NewRateLimiter(rules map[string]RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		rules:   make(map[string]RateLimitConfig, len(rules)),
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
	for name, cfg := range rules {
		rl.rules[name] = cfg
	}
	return rl
}

// StartGC drops expired buckets every interval until done is closed.
func (rl *RateLimiter) StartGC(done <-chan struct{}, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	tick := time.NewTicker(interval)
	go func() {
		defer tick.Stop()
		for {
			select {
			case <-done:
				return
			case <-tick.C:
				rl.gc()
			}
		}
	}()
}

func (rl *RateLimiter) gc() {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, b := range rl.buckets {
		if now.After(b.resetAt) {
			delete(rl.buckets, key)
		}
	}
}

// Allow consumes one request for caller under rule and reports whether it is
// within the limit, plus the time until the window resets. Unknown or
// disabled rules always allow.
func (rl *RateLimiter) Allow(rule, caller string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cfg, ok := rl.rules[rule]
	if !ok || !cfg.Enabled || cfg.MaxRequests <= 0 {
		return true, 0
	}
	window := time.Duration(cfg.WindowSeconds) * time.Second
	if window <= 0 {
		window = time.Minute
	}

	key := rule + ":" + caller
	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok || now.After(b.resetAt) {
		rl.buckets[key] = &bucket{count: 1, resetAt: now.Add(window)}
		return true, window
	}
	b.count++
	return b.count <= cfg.MaxRequests, b.resetAt.Sub(now)
}

// Limit returns middleware enforcing rule. Blocked requests get 429 JSON with
// a Retry-After header.
func (rl *RateLimiter) Limit(rule string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := kit.GetUserID(r.Context())
			if caller == "" {
				caller = "ip:" + ExtractIP(r)
			}
			ok, retry := rl.Allow(rule, caller)
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			GetLogger(r.Context()).Warn("ratelimit: request blocked", "rule", rule, "caller", caller)

			secs := int(retry.Round(time.Second).Seconds())
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{
				"error": "rate limit exceeded, please wait before retrying",
			})
		})
	}
}

// ExtractIP returns the client IP from X-Forwarded-For or RemoteAddr.
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
