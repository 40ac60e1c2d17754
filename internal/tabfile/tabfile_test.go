package tabfile

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	taberrors "github.com/maruel/tabdb/internal/errors"
)

// newTablePath returns a path for a table that does not exist yet.
func newTablePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "t.tab")
}

// mustCreate creates a table or fails the test.
func mustCreate(t *testing.T, path string, columns []string) {
	t.Helper()
	if err := Create(context.Background(), path, columns); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
}

// mustInsert inserts a row or fails the test.
func mustInsert(t *testing.T, path string, values map[string]string) {
	t.Helper()
	if err := Insert(context.Background(), path, values); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
}

// collect drains a Select into a slice, failing the test on any error.
func collect(t *testing.T, path string, columns []string, where string) []string {
	t.Helper()
	seq, err := Select(path, columns, where)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	var out []string
	for line, err := range seq {
		if err != nil {
			t.Fatalf("Select row failed: %v", err)
		}
		out = append(out, line)
	}
	return out
}

// readFile returns the raw table file content.
func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	return string(data)
}

func TestCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("writes header line", func(t *testing.T) {
		path := newTablePath(t)
		mustCreate(t, path, []string{"id", "name"})
		if got, want := readFile(t, path), "# id\tname\n"; got != want {
			t.Errorf("file content = %q, want %q", got, want)
		}
	})

	t.Run("fails on populated table", func(t *testing.T) {
		path := newTablePath(t)
		mustCreate(t, path, []string{"id"})
		err := Create(ctx, path, []string{"id"})
		if taberrors.CodeOf(err) != taberrors.CodeAlreadyExists {
			t.Errorf("Create on existing table = %v, want AlreadyExists", err)
		}
	})

	t.Run("claims existing empty file", func(t *testing.T) {
		path := newTablePath(t)
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
		mustCreate(t, path, []string{"id"})
		if got, want := readFile(t, path), "# id\n"; got != want {
			t.Errorf("file content = %q, want %q", got, want)
		}
	})

	t.Run("rejects invalid columns", func(t *testing.T) {
		tests := []struct {
			name    string
			columns []string
		}{
			{"no columns", nil},
			{"delimiter in name", []string{"id\tname"}},
			{"newline in name", []string{"id\n"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := Create(ctx, newTablePath(t), tt.columns)
				if taberrors.CodeOf(err) != taberrors.CodeBadValue {
					t.Errorf("Create(%q) = %v, want BadValue", tt.columns, err)
				}
			})
		}
	})

	t.Run("releases lock", func(t *testing.T) {
		path := newTablePath(t)
		mustCreate(t, path, []string{"id"})
		if _, err := os.Stat(path + lockSuffix); !os.IsNotExist(err) {
			t.Errorf("lock directory still present after Create: %v", err)
		}
	})
}

func TestReadHeader(t *testing.T) {
	t.Run("returns columns in order", func(t *testing.T) {
		path := newTablePath(t)
		mustCreate(t, path, []string{"id", "name", "age"})
		header, err := ReadHeader(path)
		if err != nil {
			t.Fatalf("ReadHeader failed: %v", err)
		}
		if want := []string{"id", "name", "age"}; !slices.Equal(header, want) {
			t.Errorf("ReadHeader() = %v, want %v", header, want)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := ReadHeader(newTablePath(t))
		if taberrors.CodeOf(err) != taberrors.CodeNotFound {
			t.Errorf("ReadHeader(missing) = %v, want NotFound", err)
		}
	})

	t.Run("empty file", func(t *testing.T) {
		path := newTablePath(t)
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
		_, err := ReadHeader(path)
		if taberrors.CodeOf(err) != taberrors.CodeNotFound {
			t.Errorf("ReadHeader(empty) = %v, want NotFound", err)
		}
	})
}

func TestColumnIndex(t *testing.T) {
	header := []string{"id", "name"}
	tests := []struct {
		name    string
		column  string
		want    int
		wantErr bool
	}{
		{"first column", "id", 1, false},
		{"second column", "name", 2, false},
		{"unknown column", "age", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ColumnIndex(header, tt.column)
			if tt.wantErr {
				if taberrors.CodeOf(err) != taberrors.CodeUnknownColumn {
					t.Errorf("ColumnIndex(%q) = %v, want UnknownColumn", tt.column, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ColumnIndex(%q) failed: %v", tt.column, err)
			}
			if got != tt.want {
				t.Errorf("ColumnIndex(%q) = %d, want %d", tt.column, got, tt.want)
			}
		})
	}
}

func TestInsert(t *testing.T) {
	ctx := context.Background()

	t.Run("appends in header order with defaults", func(t *testing.T) {
		path := newTablePath(t)
		mustCreate(t, path, []string{"id", "name", "age"})
		mustInsert(t, path, map[string]string{"name": "Bo", "id": "1"})
		if got, want := readFile(t, path), "# id\tname\tage\n1\tBo\t\n"; got != want {
			t.Errorf("file content = %q, want %q", got, want)
		}
	})

	t.Run("missing table", func(t *testing.T) {
		err := Insert(ctx, newTablePath(t), map[string]string{"id": "1"})
		if taberrors.CodeOf(err) != taberrors.CodeNotFound {
			t.Errorf("Insert(missing) = %v, want NotFound", err)
		}
	})

	t.Run("unknown column", func(t *testing.T) {
		path := newTablePath(t)
		mustCreate(t, path, []string{"id"})
		err := Insert(ctx, path, map[string]string{"age": "12"})
		if taberrors.CodeOf(err) != taberrors.CodeUnknownColumn {
			t.Errorf("Insert(unknown column) = %v, want UnknownColumn", err)
		}
	})

	t.Run("rejects unframable values", func(t *testing.T) {
		tests := []struct {
			name  string
			value string
		}{
			{"delimiter", "a\tb"},
			{"newline", "a\nb"},
			{"carriage return", "a\rb"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				path := newTablePath(t)
				mustCreate(t, path, []string{"id"})
				err := Insert(ctx, path, map[string]string{"id": tt.value})
				if taberrors.CodeOf(err) != taberrors.CodeBadValue {
					t.Errorf("Insert(%q) = %v, want BadValue", tt.value, err)
				}
				// The rejected row must not have been appended.
				if got, want := readFile(t, path), "# id\n"; got != want {
					t.Errorf("file content = %q, want %q", got, want)
				}
			})
		}
	})

	t.Run("empty value round-trips", func(t *testing.T) {
		path := newTablePath(t)
		mustCreate(t, path, []string{"c"})
		mustInsert(t, path, map[string]string{"c": ""})
		got := collect(t, path, nil, "")
		if want := []string{"c", ""}; !slices.Equal(got, want) {
			t.Errorf("select * = %q, want %q", got, want)
		}
	})
}

// TestScenario walks the full create/insert/select/update/delete cycle.
func TestScenario(t *testing.T) {
	ctx := context.Background()
	path := newTablePath(t)

	mustCreate(t, path, []string{"id", "name"})
	mustInsert(t, path, map[string]string{"id": "1", "name": "Bo"})
	mustInsert(t, path, map[string]string{"id": "2", "name": "Spencer"})

	got := collect(t, path, []string{"name"}, "id=1")
	if want := []string{"name", "Bo"}; !slices.Equal(got, want) {
		t.Fatalf("select name where id=1 = %q, want %q", got, want)
	}

	n, err := Update(ctx, path, "name", "Robert", "id=1")
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Update changed %d rows, want 1", n)
	}

	got = collect(t, path, []string{"name", "id"}, "")
	if want := []string{"name\tid", "Robert\t1", "Spencer\t2"}; !slices.Equal(got, want) {
		t.Fatalf("select name,id = %q, want %q", got, want)
	}

	n, err = Delete(ctx, path, "id=2")
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Delete dropped %d rows, want 1", n)
	}

	got = collect(t, path, []string{"*"}, "")
	if want := []string{"id\tname", "1\tRobert"}; !slices.Equal(got, want) {
		t.Fatalf("select * = %q, want %q", got, want)
	}
}

func TestReplace(t *testing.T) {
	ctx := context.Background()

	t.Run("replaces content atomically", func(t *testing.T) {
		path := newTablePath(t)
		mustCreate(t, path, []string{"id"})
		mustInsert(t, path, map[string]string{"id": "1"})

		in := "# id\tname\n7\tGrace\n"
		if err := Replace(ctx, path, strings.NewReader(in)); err != nil {
			t.Fatalf("Replace failed: %v", err)
		}
		if got := readFile(t, path); got != in {
			t.Errorf("file content = %q, want %q", got, in)
		}
	})

	t.Run("creates missing table", func(t *testing.T) {
		path := newTablePath(t)
		in := "# id\n1\n"
		if err := Replace(ctx, path, strings.NewReader(in)); err != nil {
			t.Fatalf("Replace failed: %v", err)
		}
		if got := readFile(t, path); got != in {
			t.Errorf("file content = %q, want %q", got, in)
		}
	})

	t.Run("rejects stream without header", func(t *testing.T) {
		path := newTablePath(t)
		mustCreate(t, path, []string{"id"})
		before := readFile(t, path)

		err := Replace(ctx, path, strings.NewReader("1\t2\n"))
		if taberrors.CodeOf(err) != taberrors.CodeBadValue {
			t.Errorf("Replace(no header) = %v, want BadValue", err)
		}
		if got := readFile(t, path); got != before {
			t.Errorf("table changed on failed Replace: %q != %q", got, before)
		}
	})

	t.Run("rejects empty stream", func(t *testing.T) {
		err := Replace(ctx, newTablePath(t), strings.NewReader(""))
		if taberrors.CodeOf(err) != taberrors.CodeBadValue {
			t.Errorf("Replace(empty) = %v, want BadValue", err)
		}
	})
}
