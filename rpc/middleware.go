package rpc

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const requestIDHeader = "X-Request-Id"

// requestID tags every request with a UUID so log lines and responses can be
// correlated.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// AuthConfig controls the HS256 bearer-token check on mutating endpoints.
type AuthConfig struct {
	Enabled    bool
	HMACSecret string
	Issuer     string
	Audience   string
}

// authenticator validates HS256 bearer tokens minted by the deployment
// tooling. Caller identity still travels in the request body; the token only
// gates access to the API, matching the already-authenticated-caller model.
type authenticator struct {
	cfg    AuthConfig
	secret []byte
	logger *slog.Logger
}

func newAuthenticator(cfg AuthConfig, logger *slog.Logger) *authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &authenticator{cfg: cfg, secret: []byte(strings.TrimSpace(cfg.HMACSecret)), logger: logger}
}

func (a *authenticator) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.cfg.Enabled {
			next.ServeHTTP(w, r)
			return
		}
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(header, "Bearer ") {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

		options := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
		if a.cfg.Issuer != "" {
			options = append(options, jwt.WithIssuer(a.cfg.Issuer))
		}
		if a.cfg.Audience != "" {
			options = append(options, jwt.WithAudience(a.cfg.Audience))
		}
		_, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
			return a.secret, nil
		}, options...)
		if err != nil {
			a.logger.Warn("rejected bearer token", slog.Any("error", err))
			http.Error(w, "invalid bearer token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimitConfig controls the per-client token bucket.
type RateLimitConfig struct {
	RequestsPerMinute float64
	Burst             int
}

type rateLimiter struct {
	cfg      RateLimitConfig
	mu       sync.Mutex
	visitors map[string]*rate.Limiter
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	return &rateLimiter{cfg: cfg, visitors: make(map[string]*rate.Limiter)}
}

func (r *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if r.cfg.RequestsPerMinute <= 0 {
			next.ServeHTTP(w, req)
			return
		}
		limiter := r.obtain(clientID(req))
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (r *rateLimiter) obtain(id string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limiter, ok := r.visitors[id]; ok {
		return limiter
	}
	perSecond := r.cfg.RequestsPerMinute / 60.0
	burst := r.cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)
	r.visitors[id] = limiter
	time.AfterFunc(10*time.Minute, func() {
		r.mu.Lock()
		delete(r.visitors, id)
		r.mu.Unlock()
	})
	return limiter
}

func clientID(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		if idx := strings.Index(forwarded, ","); idx > 0 {
			return strings.TrimSpace(forwarded[:idx])
		}
		return forwarded
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}
