package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/maruel/tabdb/internal/models"
	"github.com/maruel/tabdb/internal/server/handlers"
	"github.com/maruel/tabdb/internal/storage"
)

var testJWTSecret = []byte("test-secret-key-32-bytes-long!!!")

type testEnv struct {
	server *httptest.Server
	users  *storage.UserService
	store  *storage.Store
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	store, err := storage.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	users, err := storage.NewUserService(ctx, store)
	if err != nil {
		t.Fatalf("NewUserService: %v", err)
	}
	audit, err := storage.NewAuditService(ctx, store)
	if err != nil {
		t.Fatalf("NewAuditService: %v", err)
	}
	store.OnMutation(audit.Observer())
	subs, err := storage.NewSubscriptionService(ctx, store)
	if err != nil {
		t.Fatalf("NewSubscriptionService: %v", err)
	}

	cfg := &storage.ServerConfig{
		JWTSecret:           testJWTSecret,
		VAPID:               storage.VAPIDKeys{PublicKey: "test-public", PrivateKey: "test-private"},
		RateLimits:          storage.DefaultRateLimits(),
		MaxRequestBodyBytes: 1 << 20,
	}

	router := NewRouter(Options{
		Store:         store,
		Users:         users,
		Audit:         audit,
		Subscriptions: subs,
		Config:        cfg,
		Version:       "test",
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testEnv{server: server, users: users, store: store}
}

// doJSON performs an HTTP request, decodes the JSON response, and returns
// the status code. Body is always read and closed before returning.
func (e *testEnv) doJSON(t *testing.T, method, path string, body, response any, token string) int {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Marshal request body: %v", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, e.server.URL+path, bodyReader)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do request: %v", err)
	}

	data, err := io.ReadAll(resp.Body)
	if closeErr := resp.Body.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		t.Fatalf("ReadAll/Close: %v", err)
	}

	if response != nil && len(data) > 0 {
		if err := json.Unmarshal(data, response); err != nil {
			t.Fatalf("Unmarshal response: %v\nBody: %s", err, string(data))
		}
	}

	return resp.StatusCode
}

// login creates the user if needed and returns a bearer token for it.
func (e *testEnv) login(t *testing.T, email, password string, role models.UserRole) string {
	t.Helper()
	if _, err := e.users.GetByEmail(email); err != nil {
		user, err := e.users.Create(context.Background(), email, password, email, role)
		if err != nil {
			t.Fatalf("Create user: %v", err)
		}
		// The first user is always promoted to admin; demote explicitly
		// when the test wants less.
		if user.Role != role {
			if err := e.users.UpdateRole(context.Background(), user.ID, role); err != nil {
				t.Fatalf("UpdateRole: %v", err)
			}
		}
	}

	var resp handlers.LoginResponse
	status := e.doJSON(t, http.MethodPost, "/api/auth/login",
		handlers.LoginRequest{Email: email, Password: password}, &resp, "")
	if status != http.StatusOK {
		t.Fatalf("login %s: got status %d", email, status)
	}
	if resp.Token == "" {
		t.Fatal("login returned empty token")
	}
	return resp.Token
}

func TestRouter(t *testing.T) {
	t.Parallel()

	t.Run("Health", func(t *testing.T) {
		t.Parallel()
		env := setupTestEnv(t)

		var health handlers.HealthResponse
		status := env.doJSON(t, http.MethodGet, "/api/health", nil, &health, "")
		if status != http.StatusOK {
			t.Errorf("GET /api/health: got status %d, want %d", status, http.StatusOK)
		}
		if health.Status != "ok" {
			t.Errorf("Health status: got %q, want %q", health.Status, "ok")
		}
		if health.Version != "test" {
			t.Errorf("Health version: got %q, want %q", health.Version, "test")
		}
	})

	t.Run("AuthRequired", func(t *testing.T) {
		t.Parallel()
		env := setupTestEnv(t)

		status := env.doJSON(t, http.MethodGet, "/api/tables", nil, nil, "")
		if status != http.StatusUnauthorized {
			t.Errorf("GET /api/tables without token: got status %d, want %d", status, http.StatusUnauthorized)
		}
	})

	t.Run("LoginRejectsBadPassword", func(t *testing.T) {
		t.Parallel()
		env := setupTestEnv(t)
		_ = env.login(t, "admin@example.com", "password", models.RoleAdmin)

		var errResp struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		status := env.doJSON(t, http.MethodPost, "/api/auth/login",
			handlers.LoginRequest{Email: "admin@example.com", Password: "wrong"}, &errResp, "")
		if status != http.StatusUnauthorized {
			t.Errorf("login with bad password: got status %d, want %d", status, http.StatusUnauthorized)
		}
		if errResp.Error.Code != "UNAUTHORIZED" {
			t.Errorf("error code: got %q, want %q", errResp.Error.Code, "UNAUTHORIZED")
		}
	})

	t.Run("TableWorkflow", func(t *testing.T) {
		t.Parallel()
		env := setupTestEnv(t)
		token := env.login(t, "admin@example.com", "password", models.RoleAdmin)

		// Create a table.
		var created models.TableInfo
		status := env.doJSON(t, http.MethodPost, "/api/tables",
			handlers.CreateTableRequest{Name: "people", Columns: []string{"id", "name"}}, &created, token)
		if status != http.StatusOK {
			t.Fatalf("POST /api/tables: got status %d", status)
		}

		// Creating it again conflicts.
		status = env.doJSON(t, http.MethodPost, "/api/tables",
			handlers.CreateTableRequest{Name: "people", Columns: []string{"id", "name"}}, nil, token)
		if status != http.StatusConflict {
			t.Errorf("duplicate create: got status %d, want %d", status, http.StatusConflict)
		}

		// Insert two rows.
		for _, values := range []map[string]string{
			{"id": "1", "name": "Bo"},
			{"id": "2", "name": "Spencer"},
		} {
			status = env.doJSON(t, http.MethodPost, "/api/tables/people/rows",
				handlers.InsertRowRequest{Values: values}, nil, token)
			if status != http.StatusOK {
				t.Fatalf("POST rows: got status %d", status)
			}
		}

		// Filtered, projected select.
		var rows handlers.SelectRowsResponse
		status = env.doJSON(t, http.MethodGet, "/api/tables/people/rows?cols=name&where=id%3D1", nil, &rows, token)
		if status != http.StatusOK {
			t.Fatalf("GET rows: got status %d", status)
		}
		if len(rows.Columns) != 1 || rows.Columns[0] != "name" {
			t.Errorf("columns: got %v, want [name]", rows.Columns)
		}
		if len(rows.Rows) != 1 || rows.Rows[0][0] != "Bo" {
			t.Errorf("rows: got %v, want [[Bo]]", rows.Rows)
		}

		// Update one row.
		var mut handlers.MutationResponse
		status = env.doJSON(t, http.MethodPatch, "/api/tables/people/rows",
			handlers.UpdateRowsRequest{Column: "name", Value: "Robert", Where: "id=1"}, &mut, token)
		if status != http.StatusOK {
			t.Fatalf("PATCH rows: got status %d", status)
		}
		if mut.Affected != 1 {
			t.Errorf("update affected: got %d, want 1", mut.Affected)
		}

		// Delete the other.
		status = env.doJSON(t, http.MethodDelete, "/api/tables/people/rows?where=id%3D2", nil, &mut, token)
		if status != http.StatusOK {
			t.Fatalf("DELETE rows: got status %d", status)
		}
		if mut.Affected != 1 {
			t.Errorf("delete affected: got %d, want 1", mut.Affected)
		}

		// Unknown column surfaces as 400 with its taxonomy code.
		var errResp struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		status = env.doJSON(t, http.MethodGet, "/api/tables/people/rows?where=age%3D12", nil, &errResp, token)
		if status != http.StatusBadRequest {
			t.Errorf("unknown column: got status %d, want %d", status, http.StatusBadRequest)
		}
		if errResp.Error.Code != "UNKNOWN_COLUMN" {
			t.Errorf("error code: got %q, want %q", errResp.Error.Code, "UNKNOWN_COLUMN")
		}
	})

	t.Run("ViewerCannotMutate", func(t *testing.T) {
		t.Parallel()
		env := setupTestEnv(t)
		adminToken := env.login(t, "admin@example.com", "password", models.RoleAdmin)
		viewerToken := env.login(t, "viewer@example.com", "password", models.RoleViewer)

		status := env.doJSON(t, http.MethodPost, "/api/tables",
			handlers.CreateTableRequest{Name: "t", Columns: []string{"id"}}, nil, adminToken)
		if status != http.StatusOK {
			t.Fatalf("admin create: got status %d", status)
		}

		// Viewer can read.
		status = env.doJSON(t, http.MethodGet, "/api/tables", nil, nil, viewerToken)
		if status != http.StatusOK {
			t.Errorf("viewer list: got status %d, want %d", status, http.StatusOK)
		}

		// Viewer cannot create tables or rows.
		status = env.doJSON(t, http.MethodPost, "/api/tables",
			handlers.CreateTableRequest{Name: "t2", Columns: []string{"id"}}, nil, viewerToken)
		if status != http.StatusForbidden {
			t.Errorf("viewer create table: got status %d, want %d", status, http.StatusForbidden)
		}
		status = env.doJSON(t, http.MethodPost, "/api/tables/t/rows",
			handlers.InsertRowRequest{Values: map[string]string{"id": "1"}}, nil, viewerToken)
		if status != http.StatusForbidden {
			t.Errorf("viewer insert: got status %d, want %d", status, http.StatusForbidden)
		}

		// Viewer cannot read the audit log.
		status = env.doJSON(t, http.MethodGet, "/api/audit", nil, nil, viewerToken)
		if status != http.StatusForbidden {
			t.Errorf("viewer audit: got status %d, want %d", status, http.StatusForbidden)
		}
	})

	t.Run("AuditTrail", func(t *testing.T) {
		t.Parallel()
		env := setupTestEnv(t)
		token := env.login(t, "admin@example.com", "password", models.RoleAdmin)

		status := env.doJSON(t, http.MethodPost, "/api/tables",
			handlers.CreateTableRequest{Name: "orders", Columns: []string{"id"}}, nil, token)
		if status != http.StatusOK {
			t.Fatalf("create: got status %d", status)
		}
		status = env.doJSON(t, http.MethodPost, "/api/tables/orders/rows",
			handlers.InsertRowRequest{Values: map[string]string{"id": "1"}}, nil, token)
		if status != http.StatusOK {
			t.Fatalf("insert: got status %d", status)
		}

		var audit handlers.RecentAuditResponse
		status = env.doJSON(t, http.MethodGet, "/api/audit", nil, &audit, token)
		if status != http.StatusOK {
			t.Fatalf("GET /api/audit: got status %d", status)
		}
		if len(audit.Entries) < 2 {
			t.Fatalf("audit entries: got %d, want >= 2", len(audit.Entries))
		}
		// Newest first: the insert precedes the create in the response.
		if audit.Entries[0].Op != "insert" || audit.Entries[0].Table != "orders" {
			t.Errorf("newest entry: got op=%q table=%q, want insert/orders", audit.Entries[0].Op, audit.Entries[0].Table)
		}
	})

	t.Run("VAPIDKey", func(t *testing.T) {
		t.Parallel()
		env := setupTestEnv(t)
		token := env.login(t, "admin@example.com", "password", models.RoleAdmin)

		var resp handlers.VAPIDKeyResponse
		status := env.doJSON(t, http.MethodGet, "/api/notifications/vapid-key", nil, &resp, token)
		if status != http.StatusOK {
			t.Fatalf("GET vapid-key: got status %d", status)
		}
		if resp.Key != "test-public" {
			t.Errorf("vapid key: got %q, want %q", resp.Key, "test-public")
		}
	})

	t.Run("UserAdministration", func(t *testing.T) {
		t.Parallel()
		env := setupTestEnv(t)
		adminToken := env.login(t, "admin@example.com", "password", models.RoleAdmin)

		var created models.User
		status := env.doJSON(t, http.MethodPost, "/api/users",
			handlers.CreateUserRequest{Email: "ed@example.com", Password: "password", Name: "Ed", Role: models.RoleEditor}, &created, adminToken)
		if status != http.StatusOK {
			t.Fatalf("POST /api/users: got status %d", status)
		}
		if created.Role != models.RoleEditor {
			t.Errorf("created role: got %q, want %q", created.Role, models.RoleEditor)
		}

		var updated models.User
		status = env.doJSON(t, http.MethodPatch, "/api/users/"+created.ID+"/role",
			handlers.UpdateRoleRequest{Role: models.RoleViewer}, &updated, adminToken)
		if status != http.StatusOK {
			t.Fatalf("PATCH role: got status %d", status)
		}
		if updated.Role != models.RoleViewer {
			t.Errorf("updated role: got %q, want %q", updated.Role, models.RoleViewer)
		}

		var list handlers.ListUsersResponse
		status = env.doJSON(t, http.MethodGet, "/api/users", nil, &list, adminToken)
		if status != http.StatusOK {
			t.Fatalf("GET /api/users: got status %d", status)
		}
		if len(list.Users) != 2 {
			t.Errorf("user count: got %d, want 2", len(list.Users))
		}
	})
}
