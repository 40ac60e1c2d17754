// Parses seed manifest YAML files for the load command.

package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	taberrors "github.com/maruel/tabdb/internal/errors"
	"github.com/maruel/tabdb/internal/models"
	"gopkg.in/yaml.v3"
)

// SeedManifest defines tables, rows and user accounts to load into a
// store.
type SeedManifest struct {
	Version int         `yaml:"version"`
	Tables  []SeedTable `yaml:"tables"`
	Users   []SeedUser  `yaml:"users,omitempty"`
}

// SeedTable defines one table and its initial rows.
type SeedTable struct {
	Name    string              `yaml:"name"`
	Columns []string            `yaml:"columns"`
	Rows    []map[string]string `yaml:"rows,omitempty"`
}

// SeedUser defines one user account to provision.
type SeedUser struct {
	Email    string          `yaml:"email"`
	Password string          `yaml:"password"`
	Name     string          `yaml:"name,omitempty"`
	Role     models.UserRole `yaml:"role"`
}

// ParseSeedManifest reads and parses a seed manifest from a file.
// The path is provided by the CLI user, so file inclusion is expected.
func ParseSeedManifest(path string) (*SeedManifest, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-specified manifest path
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return ParseSeedManifestBytes(data)
}

// ParseSeedManifestBytes parses a seed manifest from bytes.
func ParseSeedManifestBytes(data []byte) (*SeedManifest, error) {
	var manifest SeedManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if err := manifest.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return &manifest, nil
}

// Validate checks that the manifest is valid.
func (m *SeedManifest) Validate() error {
	if m.Version != 1 {
		return fmt.Errorf("unsupported manifest version: %d", m.Version)
	}
	for i := range m.Tables {
		t := &m.Tables[i]
		if t.Name == "" {
			return fmt.Errorf("table %d: name is required", i)
		}
		if len(t.Columns) == 0 {
			return fmt.Errorf("table %q: at least one column is required", t.Name)
		}
		for _, row := range t.Rows {
			for col := range row {
				found := false
				for _, c := range t.Columns {
					if c == col {
						found = true
						break
					}
				}
				if !found {
					return fmt.Errorf("table %q: row references unknown column %q", t.Name, col)
				}
			}
		}
	}
	for i := range m.Users {
		u := &m.Users[i]
		if u.Email == "" {
			return fmt.Errorf("user %d: email is required", i)
		}
		if u.Password == "" {
			return fmt.Errorf("user %q: password is required", u.Email)
		}
		if u.Role.Weight() == 0 {
			return fmt.Errorf("user %q: unknown role %q", u.Email, u.Role)
		}
	}
	return nil
}

// Apply creates the manifest's tables and inserts their rows. Tables
// that already exist are skipped entirely, so re-running a load is
// harmless.
func (m *SeedManifest) Apply(ctx context.Context, store *Store) error {
	for i := range m.Tables {
		t := &m.Tables[i]
		if err := store.CreateTable(ctx, t.Name, t.Columns); err != nil {
			if taberrors.CodeOf(err) == taberrors.CodeAlreadyExists {
				slog.InfoContext(ctx, "Table already exists, skipping", "table", t.Name)
				continue
			}
			return fmt.Errorf("failed to create table %q: %w", t.Name, err)
		}
		for j, row := range t.Rows {
			if err := store.InsertRow(ctx, t.Name, row); err != nil {
				return fmt.Errorf("failed to insert row %d into %q: %w", j, t.Name, err)
			}
		}
	}
	return nil
}

// ApplyUsers provisions the manifest's user accounts. Accounts whose
// email already exists are skipped. The first account ever created is
// promoted to admin by UserService regardless of the manifest role.
func (m *SeedManifest) ApplyUsers(ctx context.Context, users *UserService) error {
	for i := range m.Users {
		u := &m.Users[i]
		if _, err := users.Create(ctx, u.Email, u.Password, u.Name, u.Role); err != nil {
			if taberrors.CodeOf(err) == taberrors.CodeAlreadyExists {
				slog.InfoContext(ctx, "User already exists, skipping", "email", u.Email)
				continue
			}
			return fmt.Errorf("failed to create user %q: %w", u.Email, err)
		}
	}
	return nil
}
