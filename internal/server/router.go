package server

import (
	"net/http"
	"strings"

	"github.com/maruel/tabdb/internal/models"
	"github.com/maruel/tabdb/internal/server/handlers"
	"github.com/maruel/tabdb/internal/server/ipgeo"
	"github.com/maruel/tabdb/internal/server/ratelimit"
	"github.com/maruel/tabdb/internal/storage"
)

// Options bundles everything the HTTP API depends on. History, Geo and
// RateLimits are optional; a nil History hides the history endpoints, a
// nil RateLimits disables throttling.
type Options struct {
	Store         *storage.Store
	Users         *storage.UserService
	Audit         *storage.AuditService
	Subscriptions *storage.SubscriptionService
	History       *storage.History
	Config        *storage.ServerConfig
	RateLimits    *ratelimit.Config
	Geo           *ipgeo.Checker
	Version       string
}

// NewRouter creates and configures the HTTP router.
func NewRouter(opts Options) http.Handler {
	mux := http.NewServeMux()

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(opts.Version)
	authHandler := handlers.NewAuthHandler(opts.Users, opts.Config.JWTSecret)
	oauthHandler := handlers.NewOAuthHandler(opts.Users, authHandler)
	if p := opts.Config.OAuth.Google; p.ClientID != "" {
		oauthHandler.AddProvider("google", p.ClientID, p.ClientSecret,
			callbackURL(opts.Config.OAuth.RedirectBaseURL, "google"))
	}
	if p := opts.Config.OAuth.GitHub; p.ClientID != "" {
		oauthHandler.AddProvider("github", p.ClientID, p.ClientSecret,
			callbackURL(opts.Config.OAuth.RedirectBaseURL, "github"))
	}
	tableHandler := handlers.NewTableHandler(opts.Store)
	subHandler := handlers.NewSubscriptionHandler(opts.Subscriptions, opts.Config.VAPID.PublicKey)
	auditHandler := handlers.NewAuditHandler(opts.Audit)
	userHandler := handlers.NewUserHandler(opts.Users)

	editor := RequireRole(models.RoleEditor)
	admin := RequireRole(models.RoleAdmin)

	// Health check
	mux.Handle("GET /api/health", Wrap(healthHandler.Health))

	// Auth endpoints
	mux.Handle("POST /api/auth/login", Wrap(authHandler.Login))
	mux.Handle("GET /api/auth/me", Wrap(authHandler.Me))
	mux.HandleFunc("GET /api/auth/oauth/{provider}", oauthHandler.LoginRedirect)
	mux.HandleFunc("GET /api/auth/oauth/{provider}/callback", oauthHandler.Callback)

	// Table endpoints
	mux.Handle("GET /api/tables", Wrap(tableHandler.ListTables))
	mux.Handle("POST /api/tables", editor(Wrap(tableHandler.CreateTable)))

	// Row endpoints
	mux.Handle("GET /api/tables/{table}/rows", Wrap(tableHandler.SelectRows))
	mux.Handle("POST /api/tables/{table}/rows", editor(Wrap(tableHandler.InsertRow)))
	mux.Handle("PATCH /api/tables/{table}/rows", editor(Wrap(tableHandler.UpdateRows)))
	mux.Handle("DELETE /api/tables/{table}/rows", editor(Wrap(tableHandler.DeleteRows)))

	// History endpoints
	if opts.History != nil {
		historyHandler := handlers.NewHistoryHandler(opts.History)
		mux.Handle("GET /api/tables/{table}/history", Wrap(historyHandler.ListCommits))
		mux.Handle("GET /api/tables/{table}/history/{hash}", Wrap(historyHandler.TableAtCommit))
	}

	// Web Push endpoints
	mux.Handle("POST /api/tables/{table}/subscriptions", Wrap(subHandler.Subscribe))
	mux.Handle("GET /api/notifications/vapid-key", Wrap(subHandler.VAPIDKey))

	// Administration endpoints
	mux.Handle("GET /api/audit", admin(Wrap(auditHandler.Recent)))
	mux.Handle("GET /api/users", admin(Wrap(userHandler.List)))
	mux.Handle("POST /api/users", admin(Wrap(userHandler.Create)))
	mux.Handle("PATCH /api/users/{id}/role", admin(Wrap(userHandler.UpdateRole)))

	var h http.Handler = MaxBody(opts.Config.MaxRequestBodyBytes)(mux)
	h = RateLimit(opts.RateLimits)(h)
	h = AuthMiddleware(opts.Users, opts.Config.JWTSecret)(h)
	h = AccessLog(opts.Geo)(h)
	return h
}

// callbackURL builds the externally visible OAuth callback URL for a
// provider.
func callbackURL(base, provider string) string {
	return strings.TrimSuffix(base, "/") + "/api/auth/oauth/" + provider + "/callback"
}
