package rpc

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dcarrith/chaimcp/internal/platform/ratelimiter"
)

type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{Enabled: true, RPS: 30, Burst: 60}
}

func newRateLimiter(cfg RateLimitConfig) *ratelimiter.MapLimiter {
	if !cfg.Enabled {
		return nil
	}
	return ratelimiter.New(cfg.RPS, cfg.Burst, 10*time.Minute)
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, retry := s.limiter.AllowOrRetry(clientKey(r), time.Now())
		if !ok {
			s.metrics.AuthRejected("rate")
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey identifies the caller by remote IP. Forwarded headers are ignored.
func clientKey(r *http.Request) string {
	remote := strings.TrimSpace(r.RemoteAddr)
	if remote == "" {
		return "ip:unknown"
	}
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return "ip:" + remote
	}
	if strings.TrimSpace(host) == "" {
		return "ip:unknown"
	}
	return "ip:" + host
}
