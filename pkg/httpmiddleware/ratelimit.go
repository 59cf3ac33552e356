package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures a sliding window limiter.
type RateLimitConfig struct {
	// Max is the number of requests allowed per Window. Zero disables limiting.
	Max    int
	Window time.Duration
	// KeyFunc extracts the client key. Defaults to ClientIP.
	KeyFunc func(*http.Request) string
	// Message is the body message of a 429 response.
	Message string
}

// window counts requests in the current and previous fixed windows; the
// effective count weights the previous one by its overlap with the sliding
// window ending now.
type window struct {
	start time.Time
	curr  float64
	prev  float64
}

// Limiter is a per-key sliding window rate limiter.
type Limiter struct {
	cfg RateLimitConfig
	now func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

// NewLimiter creates a Limiter.
func NewLimiter(cfg RateLimitConfig) *Limiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIP
	}
	if cfg.Message == "" {
		cfg.Message = "Too many requests, please try again later"
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &Limiter{cfg: cfg, now: time.Now, windows: make(map[string]*window)}
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Allow records a request for key if it is within the limit.
func (l *Limiter) Allow(key string) Decision {
	now := l.now()
	size := l.cfg.Window

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok {
		w = &window{start: now.Truncate(size)}
		l.windows[key] = w
	}
	switch elapsed := now.Sub(w.start); {
	case elapsed >= 2*size:
		w.start, w.prev, w.curr = now.Truncate(size), 0, 0
	case elapsed >= size:
		w.start, w.prev, w.curr = w.start.Add(size), w.curr, 0
	}

	overlap := 1 - float64(now.Sub(w.start))/float64(size)
	count := w.prev*math.Max(overlap, 0) + w.curr
	d := Decision{ResetAt: w.start.Add(size)}
	if count >= float64(l.cfg.Max) {
		return d
	}

	w.curr++
	d.Allowed = true
	d.Remaining = max(int(float64(l.cfg.Max)-count-1), 0)
	return d
}

// evict drops keys idle for two windows.
func (l *Limiter) evict() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, w := range l.windows {
		if now.Sub(w.start) >= 2*l.cfg.Window {
			delete(l.windows, key)
		}
	}
}

// Run evicts idle keys every two windows until ctx is done.
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(2 * l.cfg.Window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.evict()
		}
	}
}

// Middleware rejects requests over the limit with 429 and a JSON message.
// Every response carries X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset.
func (l *Limiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		if l.cfg.Max <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := l.Allow(l.cfg.KeyFunc(r))

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				retry := max(d.ResetAt.Sub(l.now()), 0)
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
				writeMessage(w, http.StatusTooManyRequests, l.cfg.Message)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit starts a Limiter with background eviction bound to ctx and
// returns its middleware.
func RateLimit(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := NewLimiter(cfg)
	go l.Run(ctx)
	return l.Middleware()
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// host part of RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return RemoteIP(r)
}

// RemoteIP returns the host part of RemoteAddr, ignoring forwarding headers.
func RemoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ProxyHopIP returns a KeyFunc that trusts only the last hops entries of
// X-Forwarded-For, the ones appended by proxies in front of the server.
// With zero hops it is RemoteIP.
func ProxyHopIP(hops int) func(*http.Request) string {
	if hops <= 0 {
		return RemoteIP
	}
	return func(r *http.Request) string {
		var chain []string
		for _, v := range r.Header.Values("X-Forwarded-For") {
			for part := range strings.SplitSeq(v, ",") {
				if ip := strings.TrimSpace(part); ip != "" {
					chain = append(chain, ip)
				}
			}
		}
		if len(chain) < hops {
			return RemoteIP(r)
		}
		return chain[len(chain)-hops]
	}
}
