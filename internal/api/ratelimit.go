package api

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/time/rate"
)

// ipLimiter hands out one token bucket per client IP. Idle buckets expire
// after a minute.
type ipLimiter struct {
	rps   rate.Limit
	burst int
	cache *ttlcache.Cache[string, *rate.Limiter]
}

func newIPLimiter(rps float64, burst int) *ipLimiter {
	cache := ttlcache.New[string, *rate.Limiter](
		ttlcache.WithTTL[string, *rate.Limiter](time.Minute),
		ttlcache.WithDisableTouchOnHit[string, *rate.Limiter](),
	)
	go cache.Start()
	return &ipLimiter{rps: rate.Limit(rps), burst: burst, cache: cache}
}

func (l *ipLimiter) get(ip string) *rate.Limiter {
	item := l.cache.Get(ip)
	if item == nil {
		item = l.cache.Set(ip, rate.NewLimiter(l.rps, l.burst), ttlcache.DefaultTTL)
	}
	return item.Value()
}

func (l *ipLimiter) Stop() { l.cache.Stop() }

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limiter := s.limiter.get(clientIP(r))
		res := limiter.Reserve()
		if delay := res.Delay(); delay > 0 {
			res.Cancel()
			s.log.Warn().Str("path", r.URL.Path).Str("remote_addr", r.RemoteAddr).Msg("rate limit exceeded")
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", math.Ceil(delay.Seconds())))
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%v", limiter.Limit()))
			w.Header().Set("X-RateLimit-Burst", fmt.Sprintf("%d", limiter.Burst()))
			writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}
