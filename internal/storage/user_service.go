// User management and authentication on top of the _users system table.

package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/maruel/ksid"
	taberrors "github.com/maruel/tabdb/internal/errors"
	"github.com/maruel/tabdb/internal/models"
	"github.com/maruel/tabdb/internal/tabfile"
	"golang.org/x/crypto/bcrypt"
)

const usersTable = "_users"

// ErrInvalidCredentials is returned by Authenticate for a bad email or
// password. The two cases are deliberately indistinguishable.
var ErrInvalidCredentials = errors.New("invalid credentials")

// userRecord is the row shape of the _users table. Field order defines
// the column layout.
type userRecord struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	Name           string `json:"name"`
	Role           string `json:"role"`
	PasswordHash   string `json:"password_hash"`
	OAuthProvider  string `json:"oauth_provider"`
	OAuthID        string `json:"oauth_id"`
	OAuthEmail     string `json:"oauth_email"`
	OAuthLastLogin string `json:"oauth_last_login"`
	Created        string `json:"created"`
	Modified       string `json:"modified"`
}

func (r *userRecord) fields() []string {
	return []string{
		r.ID, r.Email, r.Name, r.Role, r.PasswordHash,
		r.OAuthProvider, r.OAuthID, r.OAuthEmail, r.OAuthLastLogin,
		r.Created, r.Modified,
	}
}

// UserService handles user management and authentication. All users are
// kept in memory; the _users table is the durable copy.
type UserService struct {
	path    string
	columns []string

	mu      sync.RWMutex
	records []*userRecord
	byID    map[string]*userRecord
	byEmail map[string]*userRecord
}

// NewUserService opens or creates the _users table and loads all users.
func NewUserService(ctx context.Context, store *Store) (*UserService, error) {
	columns, err := tabfile.ColumnsOf[userRecord]()
	if err != nil {
		return nil, err
	}
	path := store.systemTablePath(usersTable)
	if err := tabfile.Create(ctx, path, columns); err != nil {
		if taberrors.CodeOf(err) != taberrors.CodeAlreadyExists {
			return nil, fmt.Errorf("failed to create users table: %w", err)
		}
	}

	s := &UserService{
		path:    path,
		columns: columns,
		byID:    make(map[string]*userRecord),
		byEmail: make(map[string]*userRecord),
	}
	if err := s.load(); err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	return s, nil
}

// load reads the whole users table into memory.
func (s *UserService) load() error {
	rows, err := tabfile.Select(s.path, nil, "")
	if err != nil {
		return err
	}
	first := true
	for line, err := range rows {
		if err != nil {
			return err
		}
		if first {
			first = false
			if line != strings.Join(s.columns, "\t") {
				return fmt.Errorf("users table has unexpected columns %q", line)
			}
			continue
		}
		f := strings.Split(line, "\t")
		for len(f) < len(s.columns) {
			f = append(f, "")
		}
		rec := &userRecord{
			ID: f[0], Email: f[1], Name: f[2], Role: f[3], PasswordHash: f[4],
			OAuthProvider: f[5], OAuthID: f[6], OAuthEmail: f[7], OAuthLastLogin: f[8],
			Created: f[9], Modified: f[10],
		}
		s.records = append(s.records, rec)
		s.byID[rec.ID] = rec
		s.byEmail[rec.Email] = rec
	}
	return nil
}

// replaceAll rewrites the users table from the in-memory records.
// Callers must hold s.mu.
func (s *UserService) replaceAll(ctx context.Context) error {
	var buf bytes.Buffer
	buf.WriteString("# " + strings.Join(s.columns, "\t") + "\n")
	for _, rec := range s.records {
		buf.WriteString(strings.Join(rec.fields(), "\t") + "\n")
	}
	return tabfile.Replace(ctx, s.path, &buf)
}

// Create creates a new user. The first user created becomes an admin
// regardless of the requested role.
func (s *UserService) Create(ctx context.Context, email, password, name string, role models.UserRole) (*models.User, error) {
	if email == "" || password == "" {
		return nil, taberrors.BadValue("email and password are required")
	}
	if strings.ContainsAny(email+name, "\t\n\r") {
		return nil, taberrors.BadValue("email and name must be single-line")
	}
	if role == "" {
		role = models.RoleViewer
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[email]; ok {
		return nil, taberrors.New(taberrors.CodeAlreadyExists, fmt.Sprintf("user %q already exists", email))
	}
	if len(s.records) == 0 {
		role = models.RoleAdmin
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	rec := &userRecord{
		ID:           ksid.NewID().String(),
		Email:        email,
		Name:         name,
		Role:         string(role),
		PasswordHash: string(hash),
		Created:      now,
		Modified:     now,
	}

	if err := tabfile.Insert(ctx, s.path, map[string]string{
		"id": rec.ID, "email": rec.Email, "name": rec.Name, "role": rec.Role,
		"password_hash": rec.PasswordHash, "created": rec.Created, "modified": rec.Modified,
	}); err != nil {
		return nil, err
	}

	s.records = append(s.records, rec)
	s.byID[rec.ID] = rec
	s.byEmail[rec.Email] = rec
	return rec.toModel(), nil
}

// Count returns the total number of users.
func (s *UserService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Get retrieves a user by ID.
func (s *UserService) Get(id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok {
		return nil, taberrors.New(taberrors.CodeNotFound, fmt.Sprintf("user %q not found", id))
	}
	return rec.toModel(), nil
}

// GetByEmail retrieves a user by email.
func (s *UserService) GetByEmail(email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byEmail[email]
	if !ok {
		return nil, taberrors.New(taberrors.CodeNotFound, fmt.Sprintf("user %q not found", email))
	}
	return rec.toModel(), nil
}

// Authenticate verifies user credentials.
func (s *UserService) Authenticate(email, password string) (*models.User, error) {
	s.mu.RLock()
	rec, ok := s.byEmail[email]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return rec.toModel(), nil
}

// GetByOAuth retrieves a user by their linked OAuth identity.
func (s *UserService) GetByOAuth(provider, providerID string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records {
		if rec.OAuthProvider == provider && rec.OAuthID == providerID {
			return rec.toModel(), nil
		}
	}
	return nil, taberrors.New(taberrors.CodeNotFound, "no user linked to this identity")
}

// LinkOAuth links an OAuth identity to a user, replacing any previous link.
func (s *UserService) LinkOAuth(ctx context.Context, id string, identity models.OAuthIdentity) error {
	if strings.ContainsAny(identity.Provider+identity.ProviderID+identity.Email, "\t\n\r") {
		return taberrors.BadValue("identity fields must be single-line")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return taberrors.New(taberrors.CodeNotFound, fmt.Sprintf("user %q not found", id))
	}
	rec.OAuthProvider = identity.Provider
	rec.OAuthID = identity.ProviderID
	rec.OAuthEmail = identity.Email
	rec.OAuthLastLogin = time.Now().UTC().Format(time.RFC3339Nano)
	rec.Modified = rec.OAuthLastLogin
	return s.replaceAll(ctx)
}

// UpdateRole changes a user's role.
func (s *UserService) UpdateRole(ctx context.Context, id string, role models.UserRole) error {
	if role.Weight() == 0 {
		return taberrors.BadValue(fmt.Sprintf("unknown role %q", role))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return taberrors.New(taberrors.CodeNotFound, fmt.Sprintf("user %q not found", id))
	}
	rec.Role = string(role)
	rec.Modified = time.Now().UTC().Format(time.RFC3339Nano)
	return s.replaceAll(ctx)
}

// SetPassword replaces a user's password.
func (s *UserService) SetPassword(ctx context.Context, id, password string) error {
	if password == "" {
		return taberrors.BadValue("password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return taberrors.New(taberrors.CodeNotFound, fmt.Sprintf("user %q not found", id))
	}
	rec.PasswordHash = string(hash)
	rec.Modified = time.Now().UTC().Format(time.RFC3339Nano)
	return s.replaceAll(ctx)
}

// List returns all users sorted by creation order.
func (s *UserService) List() []*models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]*models.User, 0, len(s.records))
	for _, rec := range s.records {
		users = append(users, rec.toModel())
	}
	return users
}

func (r *userRecord) toModel() *models.User {
	u := &models.User{
		ID:    r.ID,
		Email: r.Email,
		Name:  r.Name,
		Role:  models.UserRole(r.Role),
	}
	u.Created, _ = time.Parse(time.RFC3339Nano, r.Created)
	u.Modified, _ = time.Parse(time.RFC3339Nano, r.Modified)
	if r.OAuthProvider != "" {
		lastLogin, _ := time.Parse(time.RFC3339Nano, r.OAuthLastLogin)
		u.OAuthIdentities = []models.OAuthIdentity{{
			Provider:   r.OAuthProvider,
			ProviderID: r.OAuthID,
			Email:      r.OAuthEmail,
			LastLogin:  lastLogin,
		}}
	}
	return u
}
