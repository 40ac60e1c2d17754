package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	taberrors "github.com/maruel/tabdb/internal/errors"
	"github.com/maruel/tabdb/internal/models"
	"github.com/maruel/tabdb/internal/server/ipgeo"
	"github.com/maruel/tabdb/internal/server/ratelimit"
	"github.com/maruel/tabdb/internal/storage"
)

// AuthMiddleware validates JWT bearer tokens and adds the user to the
// request context. Paths outside /api/ and the public endpoints (health,
// login, OAuth) pass through untouched.
func AuthMiddleware(users *storage.UserService, jwtSecret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublic(r.Method, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(r.Context(), w, taberrors.Unauthorized("missing Authorization header"))
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				writeError(r.Context(), w, taberrors.Unauthorized("malformed Authorization header"))
				return
			}

			token, err := jwt.Parse(parts[1], func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return jwtSecret, nil
			})
			if err != nil || !token.Valid {
				writeError(r.Context(), w, taberrors.Unauthorized("invalid token"))
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				writeError(r.Context(), w, taberrors.Unauthorized("invalid claims"))
				return
			}

			userID, ok := claims["sub"].(string)
			if !ok {
				writeError(r.Context(), w, taberrors.Unauthorized("invalid subject"))
				return
			}

			user, err := users.Get(userID)
			if err != nil {
				writeError(r.Context(), w, taberrors.Unauthorized("unknown user"))
				return
			}

			ctx := context.WithValue(r.Context(), models.UserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// isPublic reports whether the endpoint requires no authentication.
func isPublic(method, path string) bool {
	if !strings.HasPrefix(path, "/api/") {
		return true
	}
	if path == "/api/health" {
		return true
	}
	if method == http.MethodPost && path == "/api/auth/login" {
		return true
	}
	return method == http.MethodGet && strings.HasPrefix(path, "/api/auth/oauth/")
}

// RequireRole ensures the authenticated user has at least the required role.
func RequireRole(required models.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := models.GetUser(r.Context())
			if user == nil {
				writeError(r.Context(), w, taberrors.Unauthorized("authentication required"))
				return
			}
			if user.Role.Weight() < required.Weight() {
				writeError(r.Context(), w, taberrors.Forbidden(fmt.Sprintf("requires %s role", required)))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit enforces the configured tiers. It must run after AuthMiddleware
// so user-scoped tiers can key on the authenticated user; anonymous
// requests fall back to the client IP.
func RateLimit(cfg *ratelimit.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if cfg == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tier := cfg.Match(r.Method, r.URL.Path)
			if tier == nil || tier.Limiter == nil {
				next.ServeHTTP(w, r)
				return
			}
			id := clientIP(r)
			if tier.Scope == ratelimit.ScopeUser {
				if user := models.GetUser(r.Context()); user != nil {
					id = user.ID
				}
			}
			result := tier.Limiter.Allow(ratelimit.BuildKey(tier.Scope, id, tier.Name))
			ratelimit.WriteHeaders(w, result)
			if !result.Allowed {
				writeError(r.Context(), w, taberrors.RateLimited())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AccessLog logs one line per request with method, path, status, duration
// and client IP. geo resolves the IP to an ISO country code; a nil checker
// still classifies local and CGNAT addresses.
func AccessLog(geo *ipgeo.Checker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			ip := clientIP(r)
			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"dur", time.Since(start).Round(time.Microsecond),
				"ip", ip,
			}
			if country := geo.CountryCode(ip); country != "" {
				attrs = append(attrs, "country", country)
			}
			slog.InfoContext(r.Context(), "HTTP", attrs...)
		})
	}
}

// MaxBody caps request body reads at n bytes. Zero or negative disables
// the cap.
func MaxBody(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if n <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, n)
			next.ServeHTTP(w, r)
		})
	}
}

// statusRecorder captures the response status code for access logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap returns the underlying ResponseWriter for middleware that needs it.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// clientIP extracts the client IP, preferring the X-Forwarded-For chain's
// first hop, then X-Real-IP, then the connection's remote address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.Index(xff, ","); i >= 0 {
			xff = xff[:i]
		}
		return strings.TrimSpace(xff)
	}
	if rip := r.Header.Get("X-Real-IP"); rip != "" {
		return rip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
