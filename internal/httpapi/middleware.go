package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/giantswarm/mcp-authgate/internal/identity"
	"github.com/giantswarm/mcp-authgate/internal/logging"
	"github.com/giantswarm/mcp-authgate/internal/metrics"
)

const headerRequestID = "X-Request-ID"

type requestIDKey struct{}

// RequestIDFromContext returns the request id assigned by RequestID
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestID propagates the caller's X-Request-ID or assigns a new one
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(headerRequestID))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// Logging: method, path, status, duration
func Logging(logger *logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &metrics.StatusWriter{ResponseWriter: w, Code: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		logger.InfoVerbose("%s %s -> %d (%s) [%s]", r.Method, r.URL.Path, sw.Code, time.Since(start), RequestIDFromContext(r.Context()))
	})
}

// rateLimiter keeps one token bucket per client IP
type rateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	limit     rate.Limit
	burst     int
	ttl       time.Duration
	lastSweep time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func newRateLimiter(perSecond float64, burst int) *rateLimiter {
	return &rateLimiter{
		buckets:   map[string]*bucket{},
		limit:     rate.Limit(perSecond),
		burst:     burst,
		ttl:       5 * time.Minute,
		lastSweep: time.Now(),
	}
}

func (rl *rateLimiter) allow(ip string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) > time.Minute {
		for k, b := range rl.buckets {
			if now.Sub(b.seen) > rl.ttl {
				delete(rl.buckets, k)
			}
		}
		rl.lastSweep = now
	}

	b, ok := rl.buckets[ip]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[ip] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

// RateLimit: token-bucket per client IP. A non-positive rate disables it.
// X-Forwarded-For is only consulted when trustForwardedFor is set.
func RateLimit(next http.Handler, perSecond float64, burst int, trustForwardedFor bool) http.Handler {
	if perSecond <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	rl := newRateLimiter(perSecond, burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r, trustForwardedFor)
		if ip == "" {
			ip = "unknown"
		}
		if !rl.allow(ip, time.Now()) {
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request, trustForwardedFor bool) string {
	// the proxy appends the peer it saw, so only the last entry is trusted
	if xff := r.Header.Get("X-Forwarded-For"); trustForwardedFor && xff != "" {
		parts := strings.Split(xff, ",")
		if ip := strings.TrimSpace(parts[len(parts)-1]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// withAuth authenticates the request and stores the AuthUser in its
// context. Failures are answered with 401.
func (s *Server) withAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.auth.Authenticate(r.Context(), r.Header)
		if err != nil {
			detail := "Authentication failed"
			var ue *identity.UnauthorizedError
			if errors.As(err, &ue) {
				detail = ue.Detail
			}
			writeError(w, http.StatusUnauthorized, detail)
			return
		}
		next.ServeHTTP(w, r.WithContext(identity.ContextWithUser(r.Context(), user)))
	})
}
