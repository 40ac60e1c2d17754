package handlers

import (
	"context"

	taberrors "github.com/maruel/tabdb/internal/errors"
	"github.com/maruel/tabdb/internal/models"
	"github.com/maruel/tabdb/internal/storage"
)

// UserHandler handles user management requests. Every endpoint is
// admin-gated by the router.
type UserHandler struct {
	users *storage.UserService
}

// NewUserHandler creates a new user handler.
func NewUserHandler(users *storage.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// ListUsersRequest is a request to list all users (empty).
type ListUsersRequest struct{}

// ListUsersResponse is a response containing a list of users.
type ListUsersResponse struct {
	Users []*models.User `json:"users"`
}

// List returns all users in the system.
func (h *UserHandler) List(ctx context.Context, req ListUsersRequest) (*ListUsersResponse, error) {
	return &ListUsersResponse{Users: h.users.List()}, nil
}

// CreateUserRequest is a request to create a user.
type CreateUserRequest struct {
	Email    string          `json:"email"`
	Password string          `json:"password"`
	Name     string          `json:"name"`
	Role     models.UserRole `json:"role"`
}

// Create creates a user with the given role (viewer when empty).
func (h *UserHandler) Create(ctx context.Context, req CreateUserRequest) (*models.User, error) {
	return h.users.Create(ctx, req.Email, req.Password, req.Name, req.Role)
}

// UpdateRoleRequest is a request to change a user's role.
type UpdateRoleRequest struct {
	ID   string          `path:"id" json:"-"`
	Role models.UserRole `json:"role"`
}

// UpdateRole changes a user's role and returns the updated user.
func (h *UserHandler) UpdateRole(ctx context.Context, req UpdateRoleRequest) (*models.User, error) {
	if req.ID == "" || req.Role == "" {
		return nil, taberrors.BadValue("id and role are required")
	}
	if err := h.users.UpdateRole(ctx, req.ID, req.Role); err != nil {
		return nil, err
	}
	return h.users.Get(req.ID)
}
