package api

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/dunamismax/optimg/internal/ratelimit"
)

type RateLimiter interface {
	Allow(ctx context.Context, subject string) (ratelimit.Decision, error)
}

// limitSubmissions charges each task submission to its client. Status reads
// are never limited. A failing limiter lets the submission through.
func (s *Server) limitSubmissions(next http.HandlerFunc) http.HandlerFunc {
	if s.rateLimiter == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		client := s.clientOf(r)
		decision, err := s.rateLimiter.Allow(r.Context(), "submit:"+client)
		if err != nil {
			s.log.Warn().Str("client", client).Err(err).Msg("rate limiter unavailable")
			next(w, r)
			return
		}
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
		if !decision.Allowed {
			s.metrics.submitted(submitRateLimited)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(decision)))
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many task submissions"})
			return
		}
		next(w, r)
	}
}

// clientOf names the submitter: the configured header when set, the
// remote host otherwise.
func (s *Server) clientOf(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(s.clientHeader)); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func retryAfterSeconds(d ratelimit.Decision) int {
	secs := int(math.Ceil(d.RetryAfter.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
