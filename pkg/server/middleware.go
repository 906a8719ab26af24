package server

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// senderLimiter applies a per-client token bucket. Clients are keyed by
// the X-Sender header when present, falling back to the remote address.
type senderLimiter struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newSenderLimiter(rps float64, burst int) *senderLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &senderLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *senderLimiter) limiterFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.limiters[key] = lim
	}
	return lim
}

func (l *senderLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-Sender")
		if key == "" {
			key = r.RemoteAddr
		}

		if !l.limiterFor(key).Allow() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
