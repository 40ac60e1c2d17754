// Defines rate limit tiers and request-to-tier routing.

package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Scope defines how rate limit keys are derived.
type Scope int

const (
	// ScopeIP keys buckets by client IP address.
	ScopeIP Scope = iota
	// ScopeUser keys buckets by authenticated user ID, falling back to
	// client IP for anonymous requests.
	ScopeUser
)

// Tier pairs a limiter with the scope its keys are derived from.
// A Tier with a nil Limiter is disabled.
type Tier struct {
	Name    string
	Limiter *Limiter
	Scope   Scope
}

// Config holds the rate limit tiers for the HTTP API:
//   - Auth: credential endpoints (login, OAuth), keyed by IP
//   - Write: mutating requests, keyed by user
//   - Read: everything else, keyed by user with IP fallback
type Config struct {
	Auth  Tier
	Write Tier
	Read  Tier
}

// NewConfig creates the three API tiers from per-minute limits.
// A limit of 0 disables that tier.
func NewConfig(authPerMin, writePerMin, readPerMin int) *Config {
	return &Config{
		Auth:  newTier("auth", authPerMin, ScopeIP),
		Write: newTier("write", writePerMin, ScopeUser),
		Read:  newTier("read", readPerMin, ScopeUser),
	}
}

func newTier(name string, perMin int, scope Scope) Tier {
	if perMin <= 0 {
		return Tier{Name: name, Scope: scope}
	}
	// Small limits keep their full burst, larger ones a sixth.
	burst := perMin
	if perMin > 10 {
		burst = max(perMin/6, 10)
	}
	return Tier{Name: name, Limiter: NewLimiter(perMin, time.Minute, burst), Scope: scope}
}

// Match returns the tier for method and path, or nil when the request
// should not be rate limited.
func (c *Config) Match(method, path string) *Tier {
	if path == "/api/health" {
		return nil
	}
	if isAuthEndpoint(method, path) {
		return &c.Auth
	}
	switch method {
	case http.MethodGet:
		return &c.Read
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return &c.Write
	}
	return nil
}

// isAuthEndpoint reports whether the path issues or exchanges credentials.
func isAuthEndpoint(method, path string) bool {
	if method == http.MethodPost && path == "/api/auth/login" {
		return true
	}
	return method == http.MethodGet && strings.HasPrefix(path, "/api/auth/oauth/")
}

// Close stops the cleanup goroutines of all tiers.
func (c *Config) Close() {
	for _, t := range []*Tier{&c.Auth, &c.Write, &c.Read} {
		if t.Limiter != nil {
			t.Limiter.Close()
		}
	}
}

// BuildKey creates a rate limit bucket key from scope, identifier, and tier
// name.
func BuildKey(scope Scope, identifier, tierName string) string {
	prefix := "ip"
	if scope == ScopeUser {
		prefix = "user"
	}
	return prefix + ":" + identifier + ":" + tierName
}

// WriteHeaders writes the X-RateLimit response headers, plus Retry-After
// when the request was denied.
func WriteHeaders(w http.ResponseWriter, result Result) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
	if !result.Allowed {
		h.Set("Retry-After", strconv.Itoa(max(int(result.RetryAfter.Seconds()), 1)))
	}
}
