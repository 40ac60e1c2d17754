package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	taberrors "github.com/maruel/tabdb/internal/errors"
	"github.com/maruel/tabdb/internal/models"
	"github.com/maruel/tabdb/internal/storage"
)

// AuthHandler handles authentication requests.
type AuthHandler struct {
	users     *storage.UserService
	jwtSecret []byte
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(users *storage.UserService, jwtSecret []byte) *AuthHandler {
	return &AuthHandler{
		users:     users,
		jwtSecret: jwtSecret,
	}
}

// LoginRequest is a request to log in.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is a response from logging in.
type LoginResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Login handles user login and returns a JWT token.
func (h *AuthHandler) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	if req.Email == "" || req.Password == "" {
		return nil, taberrors.BadValue("email and password are required")
	}

	user, err := h.users.Authenticate(req.Email, req.Password)
	if err != nil {
		// Bad email and bad password answer identically.
		return nil, taberrors.Unauthorized("invalid credentials")
	}

	token, err := h.GenerateToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &LoginResponse{
		Token: token,
		User:  user,
	}, nil
}

// GenerateToken creates a signed JWT for the user, valid for 24 hours.
func (h *AuthHandler) GenerateToken(user *models.User) (string, error) {
	claims := jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"role":  string(user.Role),
		"exp":   time.Now().Add(time.Hour * 24).Unix(), // 24 hours
		"iat":   time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.jwtSecret)
}

// MeRequest is a request to get current user info.
type MeRequest struct{}

// Me returns the current user info from the context.
func (h *AuthHandler) Me(ctx context.Context, req MeRequest) (*models.User, error) {
	user := models.GetUser(ctx)
	if user == nil {
		return nil, taberrors.Unauthorized("authentication required")
	}
	return user, nil
}
