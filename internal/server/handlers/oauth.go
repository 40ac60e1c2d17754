package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	taberrors "github.com/maruel/tabdb/internal/errors"
	"github.com/maruel/tabdb/internal/models"
	"github.com/maruel/tabdb/internal/storage"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
)

// stateCookie carries the CSRF state between redirect and callback.
const stateCookie = "oauth_state"

// OAuthHandler handles OAuth2 authentication for multiple providers.
type OAuthHandler struct {
	users     *storage.UserService
	auth      *AuthHandler
	providers map[string]*oauth2.Config
}

// NewOAuthHandler creates a new OAuth handler.
func NewOAuthHandler(users *storage.UserService, auth *AuthHandler) *OAuthHandler {
	return &OAuthHandler{
		users:     users,
		auth:      auth,
		providers: make(map[string]*oauth2.Config),
	}
}

// AddProvider adds an OAuth2 provider configuration.
func (h *OAuthHandler) AddProvider(name, clientID, clientSecret, redirectURL string) {
	var endpoint oauth2.Endpoint
	var scopes []string

	switch name {
	case "google":
		endpoint = google.Endpoint
		scopes = []string{
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		}
	case "github":
		endpoint = github.Endpoint
		scopes = []string{"read:user", "user:email"}
	default:
		return
	}

	h.providers[name] = &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       scopes,
		Endpoint:     endpoint,
	}
}

// LoginRedirect redirects the user to the OAuth provider.
func (h *OAuthHandler) LoginRedirect(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")
	config, ok := h.providers[provider]
	if !ok {
		writeErrorResponse(w, taberrors.NotFound(provider))
		return
	}

	state, err := randomHex(16)
	if err != nil {
		writeErrorResponse(w, taberrors.New(taberrors.CodeIO, "failed to generate state"))
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/api/auth/oauth/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, config.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// Callback handles the OAuth provider callback.
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")
	config, ok := h.providers[provider]
	if !ok {
		writeErrorResponse(w, taberrors.NotFound(provider))
		return
	}

	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || r.URL.Query().Get("state") != cookie.Value {
		writeErrorResponse(w, taberrors.Unauthorized("OAuth state mismatch"))
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeErrorResponse(w, taberrors.BadValue("missing code parameter"))
		return
	}

	token, err := config.Exchange(r.Context(), code)
	if err != nil {
		writeErrorResponse(w, taberrors.Unauthorized("OAuth token exchange failed"))
		return
	}

	userInfo, err := fetchUserInfo(r, config, token, provider)
	if err != nil {
		writeErrorResponse(w, err)
		return
	}

	// Find by linked identity first, then by email, then create.
	user, err := h.users.GetByOAuth(provider, userInfo.ID)
	if err != nil {
		user, err = h.users.GetByEmail(userInfo.Email)
		if err != nil {
			// OAuth users never use the local password; give them a
			// random one. The first user still becomes an admin.
			password, err2 := randomHex(32)
			if err2 != nil {
				writeErrorResponse(w, taberrors.New(taberrors.CodeIO, "failed to generate password"))
				return
			}
			user, err = h.users.Create(r.Context(), userInfo.Email, password, userInfo.Name, models.RoleViewer)
			if err != nil {
				writeErrorResponse(w, err)
				return
			}
		}

		if err := h.users.LinkOAuth(r.Context(), user.ID, models.OAuthIdentity{
			Provider:   provider,
			ProviderID: userInfo.ID,
			Email:      userInfo.Email,
			LastLogin:  time.Now(),
		}); err != nil {
			writeErrorResponse(w, err)
			return
		}
	}

	// Get fully populated user
	user, err = h.users.Get(user.ID)
	if err != nil {
		writeErrorResponse(w, err)
		return
	}

	jwtToken, err := h.auth.GenerateToken(user)
	if err != nil {
		writeErrorResponse(w, fmt.Errorf("failed to sign token: %w", err))
		return
	}

	// Redirect back to the frontend with the token.
	http.Redirect(w, r, "/?token="+jwtToken, http.StatusTemporaryRedirect)
}

// oauthUserInfo is the provider-independent identity shape.
type oauthUserInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// fetchUserInfo retrieves the user's identity from the provider's API.
func fetchUserInfo(r *http.Request, config *oauth2.Config, token *oauth2.Token, provider string) (*oauthUserInfo, error) {
	client := config.Client(r.Context(), token)
	var userInfo oauthUserInfo

	switch provider {
	case "google":
		resp, err := client.Get("https://www.googleapis.com/oauth2/v2/userinfo")
		if err != nil {
			return nil, taberrors.Unauthorized("failed to fetch user info")
		}
		defer func() { _ = resp.Body.Close() }()
		if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
			return nil, taberrors.Unauthorized("failed to decode user info")
		}
	case "github":
		resp, err := client.Get("https://api.github.com/user")
		if err != nil {
			return nil, taberrors.Unauthorized("failed to fetch user info")
		}
		defer func() { _ = resp.Body.Close() }()

		var ghUser struct {
			ID    int64  `json:"id"`
			Login string `json:"login"`
			Name  string `json:"name"`
			Email string `json:"email"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&ghUser); err != nil {
			return nil, taberrors.Unauthorized("failed to decode user info")
		}
		userInfo.ID = strconv.FormatInt(ghUser.ID, 10)
		userInfo.Name = ghUser.Name
		if userInfo.Name == "" {
			userInfo.Name = ghUser.Login
		}
		// GitHub hides the email for private-email accounts.
		userInfo.Email = ghUser.Email
		if userInfo.Email == "" {
			userInfo.Email = ghUser.Login + "@users.noreply.github.com"
		}
	}

	if userInfo.ID == "" || userInfo.Email == "" {
		return nil, taberrors.Unauthorized("provider returned no usable identity")
	}
	return &userInfo, nil
}

// randomHex returns n random bytes hex-encoded.
func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
