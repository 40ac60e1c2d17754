// Package models defines the core data structures used throughout the application.
package models

import (
	"context"
	"time"
)

// GetUser extracts the authenticated user from the context.
func GetUser(ctx context.Context) *User {
	user, ok := ctx.Value(UserKey).(*User)
	if !ok {
		return nil
	}
	return user
}

// User represents a system user.
type User struct {
	ID              string          `json:"id"`
	Email           string          `json:"email"`
	Name            string          `json:"name"`
	Role            UserRole        `json:"role"`
	OAuthIdentities []OAuthIdentity `json:"oauth_identities,omitempty"`
	Created         time.Time       `json:"created"`
	Modified        time.Time       `json:"modified"`
}

// OAuthIdentity represents a link between a local user and an OAuth2 provider.
type OAuthIdentity struct {
	Provider   string    `json:"provider"` // google, github
	ProviderID string    `json:"provider_id"`
	Email      string    `json:"email"`
	LastLogin  time.Time `json:"last_login"`
}

// UserRole defines the permissions for a user.
type UserRole string

const (
	// RoleAdmin has full access to all tables and settings.
	RoleAdmin UserRole = "admin"
	// RoleEditor can create and modify tables but cannot manage users.
	RoleEditor UserRole = "editor"
	// RoleViewer can only read tables.
	RoleViewer UserRole = "viewer"
)

// Weight returns the privilege level of the role, higher is more privileged.
func (r UserRole) Weight() int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleEditor:
		return 2
	case RoleViewer:
		return 1
	default:
		return 0
	}
}

// TableInfo describes a table's schema as reported by the listing APIs.
type TableInfo struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

// AuditEntry records a single mutation against a table.
//
// Field order matters: it defines the column layout of the audit table.
type AuditEntry struct {
	ID     string    `json:"id"`
	At     time.Time `json:"at"`
	Actor  string    `json:"actor"`
	Op     string    `json:"op"`
	Table  string    `json:"table"`
	Detail string    `json:"detail,omitempty"`
}

// PushSubscription represents a registered Web Push endpoint interested in
// change notifications for a table.
type PushSubscription struct {
	ID       string    `json:"id"`
	Table    string    `json:"table"`
	Endpoint string    `json:"endpoint"`
	P256dh   string    `json:"p256dh"`
	Auth     string    `json:"auth"`
	Created  time.Time `json:"created"`
}

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const (
	// UserKey is the context key for the authenticated user.
	UserKey ContextKey = "user"
)
