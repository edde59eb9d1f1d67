package web

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const visitorIdleTTL = 3 * time.Minute

// rateLimiter keeps one token bucket per client IP for general requests and
// a stricter one for endpoints that reach the finance API with a file.
type rateLimiter struct {
	general rate.Limit
	imports rate.Limit
	burst   int
	ibursts int

	mu       sync.Mutex
	visitors map[string]*visitor

	done chan struct{}
	once sync.Once
}

type visitor struct {
	general  *rate.Limiter
	imports  *rate.Limiter
	lastSeen time.Time
}

// newRateLimiter creates a limiter allowing perMinute requests and
// importPerMinute file or submit requests per IP.
func newRateLimiter(perMinute, importPerMinute int) *rateLimiter {
	rl := &rateLimiter{
		general:  rate.Limit(float64(perMinute) / 60),
		imports:  rate.Limit(float64(importPerMinute) / 60),
		burst:    max(perMinute, 1),
		ibursts:  max(importPerMinute, 1),
		visitors: make(map[string]*visitor),
		done:     make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// cleanup removes visitors not seen for a while.
func (rl *rateLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.mu.Lock()
			for ip, v := range rl.visitors {
				if time.Since(v.lastSeen) > visitorIdleTTL {
					delete(rl.visitors, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.once.Do(func() { close(rl.done) })
}

func (rl *rateLimiter) visitor(ip string) *visitor {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{
			general: rate.NewLimiter(rl.general, rl.burst),
			imports: rate.NewLimiter(rl.imports, rl.ibursts),
		}
		rl.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	return v
}

// allow reports whether a request to path from ip may proceed.
func (rl *rateLimiter) allow(ip, method, path string) bool {
	v := rl.visitor(ip)
	if !v.general.Allow() {
		return false
	}
	if method == http.MethodPost && isImportPath(path) {
		return v.imports.Allow()
	}
	return true
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(clientIP(r), r.Method, r.URL.Path) {
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
				Error:   "rate limit exceeded",
				Message: "Too many requests",
				Action:  "Wait a minute and try again",
				Code:    "RATE001",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isImportPath(path string) bool {
	return strings.HasSuffix(path, "/file") || strings.HasSuffix(path, "/submit") || strings.HasSuffix(path, "/retry")
}

// clientIP returns the host part of RemoteAddr, which TrustedRealIP has
// already rewritten for trusted proxies.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
