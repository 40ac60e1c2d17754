package storage

import (
	"context"
	"testing"

	"github.com/maruel/tabdb/internal/models"
)

// newTestContext returns a context with an authenticated test user.
func newTestContext() context.Context {
	user := &models.User{
		ID:    "test-user",
		Email: "test@example.com",
		Name:  "Test User",
		Role:  models.RoleAdmin,
	}
	return context.WithValue(context.Background(), models.UserKey, user)
}

// newTestStore returns a Store rooted in a fresh temp directory.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}
