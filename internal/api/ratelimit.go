package api

import (
	"encoding/json"
	"net"
	"net/http"
	"time"

	domainerrors "github.com/listenupapp/narrator/internal/errors"
	"github.com/listenupapp/narrator/internal/ratelimit"
)

// NewSubmitLimiter allows perMinute narration submissions per client, with that many in a burst.
// Zero disables limiting.
func NewSubmitLimiter(perMinute int) *ratelimit.KeyedRateLimiter {
	if perMinute <= 0 {
		return nil
	}
	return ratelimit.New(float64(perMinute)/time.Minute.Seconds(), perMinute)
}

// limitSubmissions rejects POST /api/v1/narrations with 429 once a client exceeds its rate.
// Every submission starts a browser, so reads stay unlimited.
func (s *Server) limitSubmissions(limiter *ratelimit.KeyedRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != narrationsPath {
				next.ServeHTTP(w, r)
				return
			}

			// RealIP has already replaced RemoteAddr with the forwarded client address.
			key := clientIP(r)
			if !limiter.Allow(key) {
				s.logger.Warn("Rate limit exceeded", "ip", key, "path", r.URL.Path)
				writeTooManyRequests(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeTooManyRequests(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "60")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(APIError{
		Code:    string(domainerrors.CodeRateLimited),
		Message: "Too many narration requests. Please try again later.",
	})
}
