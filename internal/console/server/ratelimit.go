package server

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientRateLimiter: token bucket на каждый IP клиента.
// Давно не появлявшиеся клиенты вычищаются, чтобы карта не росла бесконечно.
type clientRateLimiter struct {
	mu       sync.Mutex
	rps      rate.Limit
	burst    int
	ttl      time.Duration
	clients  map[string]*rate.Limiter
	lastSeen map[string]time.Time
	now      func() time.Time

	sweepEvery time.Duration
	lastSweep  time.Time
}

// newClientRateLimiter возвращает nil, если лимит выключен.
func newClientRateLimiter(requestsPerSec float64, burst int) *clientRateLimiter {
	if requestsPerSec <= 0 || burst <= 0 {
		return nil
	}

	return &clientRateLimiter{
		rps:      rate.Limit(requestsPerSec),
		burst:    burst,
		ttl:      10 * time.Minute,
		clients:  make(map[string]*rate.Limiter),
		lastSeen: make(map[string]time.Time),
		now:      time.Now,

		sweepEvery: time.Minute,
	}
}

func (l *clientRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(clientAddress(r)) {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (l *clientRateLimiter) allow(clientID string) bool {
	if clientID == "" {
		clientID = "unknown"
	}

	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.clients[clientID]
	if !exists {
		limiter = rate.NewLimiter(l.rps, l.burst)
		l.clients[clientID] = limiter
	}
	l.lastSeen[clientID] = now

	if now.Sub(l.lastSweep) >= l.sweepEvery {
		l.sweep(now)
	}

	return limiter.AllowN(now, 1)
}

// sweep вызывается под l.mu не чаще раза в sweepEvery.
func (l *clientRateLimiter) sweep(now time.Time) {
	l.lastSweep = now
	for key, seenAt := range l.lastSeen {
		if now.Sub(seenAt) > l.ttl {
			delete(l.lastSeen, key)
			delete(l.clients, key)
		}
	}
}

// clientAddress берет только RemoteAddr: заголовки прокси учитывает RealIP,
// и только когда server.trust_proxy_headers включен.
func clientAddress(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
