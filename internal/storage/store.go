// Maps table names to files in the data directory and fans mutations
// out to registered observers.

package storage

import (
	"context"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	taberrors "github.com/maruel/tabdb/internal/errors"
	"github.com/maruel/tabdb/internal/models"
	"github.com/maruel/tabdb/internal/tabfile"
)

// tableNameRe limits table names to something safe to join onto a
// directory. The leading character class keeps system tables (underscore
// prefixed) and dotfiles out of user reach.
var tableNameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// Mutation describes a completed write against a table.
type Mutation struct {
	Op     string // create, insert, update, delete, import
	Table  string
	Detail string // human-readable summary, e.g. "2 rows"
}

// Store manages a directory of tables, one file per table.
//
// User tables live under dataDir/tables. System tables share the
// directory with an underscore prefix that the name validation rejects,
// so they are reachable only through the dedicated services.
type Store struct {
	dataDir   string
	tablesDir string
	headers   headerCache

	mu        sync.Mutex
	observers []func(context.Context, Mutation)
}

// NewStore initializes a Store rooted at dataDir, creating the table
// directory if needed.
func NewStore(dataDir string) (*Store, error) {
	tablesDir := filepath.Join(dataDir, "tables")
	if err := os.MkdirAll(tablesDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create table directory: %w", err)
	}
	return &Store{
		dataDir:   dataDir,
		tablesDir: tablesDir,
		headers:   headerCache{byPath: make(map[string][]string)},
	}, nil
}

// DataDir returns the root data directory.
func (s *Store) DataDir() string {
	return s.dataDir
}

// TablesDir returns the directory holding the table files.
func (s *Store) TablesDir() string {
	return s.tablesDir
}

// OnMutation registers fn to be called after every successful write.
// Observers must not block; slow work belongs in a goroutine.
func (s *Store) OnMutation(fn func(context.Context, Mutation)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

func (s *Store) notify(ctx context.Context, m Mutation) {
	s.mu.Lock()
	observers := s.observers
	s.mu.Unlock()
	for _, fn := range observers {
		fn(ctx, m)
	}
}

// TablePath resolves a user-facing table name to its on-disk path.
func (s *Store) TablePath(name string) (string, error) {
	if !tableNameRe.MatchString(name) {
		return "", taberrors.BadValue(fmt.Sprintf("invalid table name %q", name))
	}
	// A name ending in the lock or temp suffix would collide with the
	// engine's lock directory or rewrite files.
	if strings.HasSuffix(name, ".lock") || strings.HasSuffix(name, ".tmp") {
		return "", taberrors.BadValue(fmt.Sprintf("invalid table name %q", name))
	}
	return filepath.Join(s.tablesDir, name), nil
}

// systemTablePath resolves an internal system table name. No validation:
// callers are in this package and pass constants.
func (s *Store) systemTablePath(name string) string {
	return filepath.Join(s.tablesDir, name)
}

// Tables lists all user tables with their column names, sorted by name.
func (s *Store) Tables() ([]models.TableInfo, error) {
	entries, err := os.ReadDir(s.tablesDir)
	if err != nil {
		return nil, taberrors.IO("list tables", err)
	}
	var infos []models.TableInfo
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !tableNameRe.MatchString(name) {
			continue
		}
		if strings.HasSuffix(name, ".lock") || strings.HasSuffix(name, ".tmp") {
			continue
		}
		columns, err := s.Header(name)
		if err != nil {
			// Unreadable or headerless files are not tables.
			continue
		}
		infos = append(infos, models.TableInfo{Name: name, Columns: columns})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Header returns the column names of a table, consulting the cache first.
func (s *Store) Header(name string) ([]string, error) {
	path, err := s.TablePath(name)
	if err != nil {
		return nil, err
	}
	if columns, ok := s.headers.get(path); ok {
		return columns, nil
	}
	columns, err := tabfile.ReadHeader(path)
	if err != nil {
		return nil, err
	}
	s.headers.set(path, columns)
	return columns, nil
}

// CreateTable creates a new empty table with the given columns.
func (s *Store) CreateTable(ctx context.Context, name string, columns []string) error {
	path, err := s.TablePath(name)
	if err != nil {
		return err
	}
	if err := tabfile.Create(ctx, path, columns); err != nil {
		return err
	}
	s.headers.set(path, columns)
	s.notify(ctx, Mutation{Op: "create", Table: name, Detail: strings.Join(columns, ",")})
	return nil
}

// InsertRow appends a row to a table. Columns absent from values are
// stored as empty strings.
func (s *Store) InsertRow(ctx context.Context, name string, values map[string]string) error {
	path, err := s.TablePath(name)
	if err != nil {
		return err
	}
	if err := tabfile.Insert(ctx, path, values); err != nil {
		return err
	}
	s.notify(ctx, Mutation{Op: "insert", Table: name, Detail: "1 row"})
	return nil
}

// SelectRows streams projected rows from a table. The first emitted line
// is the projected header. where may be empty to match all rows.
func (s *Store) SelectRows(name string, columns []string, where string) (iter.Seq2[string, error], error) {
	path, err := s.TablePath(name)
	if err != nil {
		return nil, err
	}
	return tabfile.Select(path, columns, where)
}

// UpdateRows sets column to value on every row matching where and
// returns the number of rows changed.
func (s *Store) UpdateRows(ctx context.Context, name, column, value, where string) (int, error) {
	path, err := s.TablePath(name)
	if err != nil {
		return 0, err
	}
	n, err := tabfile.Update(ctx, path, column, value, where)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.notify(ctx, Mutation{Op: "update", Table: name, Detail: fmt.Sprintf("%d rows", n)})
	}
	return n, nil
}

// DeleteRows removes every row matching where and returns the number of
// rows removed.
func (s *Store) DeleteRows(ctx context.Context, name, where string) (int, error) {
	path, err := s.TablePath(name)
	if err != nil {
		return 0, err
	}
	n, err := tabfile.Delete(ctx, path, where)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.notify(ctx, Mutation{Op: "delete", Table: name, Detail: fmt.Sprintf("%d rows", n)})
	}
	return n, nil
}

// ImportTable replaces a table's contents wholesale with data read from
// r, which must start with a header line.
func (s *Store) ImportTable(ctx context.Context, name string, r io.Reader) error {
	path, err := s.TablePath(name)
	if err != nil {
		return err
	}
	if err := tabfile.Replace(ctx, path, r); err != nil {
		return err
	}
	s.headers.invalidate(path)
	s.notify(ctx, Mutation{Op: "import", Table: name, Detail: ""})
	return nil
}

// ExportTable writes a table's raw contents to w.
func (s *Store) ExportTable(name string, w io.Writer) error {
	path, err := s.TablePath(name)
	if err != nil {
		return err
	}
	f, err := os.Open(path) //nolint:gosec // G304: path is validated by TablePath
	if err != nil {
		if os.IsNotExist(err) {
			return taberrors.NotFound(name)
		}
		return taberrors.IO("open table", err)
	}
	defer func() { _ = f.Close() }()
	if _, err := io.Copy(w, f); err != nil {
		return taberrors.IO("export table", err)
	}
	return nil
}

// headerCache memoizes table headers by path. Mutations that can change
// a header and the directory watcher invalidate entries.
type headerCache struct {
	mu     sync.RWMutex
	byPath map[string][]string
}

func (c *headerCache) get(path string) ([]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	columns, ok := c.byPath[path]
	return columns, ok
}

func (c *headerCache) set(path string, columns []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byPath[path] = columns
}

func (c *headerCache) invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byPath, path)
}

func (c *headerCache) invalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byPath = make(map[string][]string)
}
