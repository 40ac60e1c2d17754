// Package tabfile implements a minimal flat-file tabular store: one table
// per file, a tab-delimited header line prefixed with "# ", and one
// tab-delimited data row per subsequent line.
//
// Mutations (Create, Insert, Update, Delete, Replace) serialize against
// each other through a directory-based lock next to the table file and
// commit through an atomic rename, so a partially written table is never
// visible under its own name. Select reads without locking: it sees
// whichever file state exists at read time.
package tabfile

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	taberrors "github.com/maruel/tabdb/internal/errors"
)

const (
	// headerMarker prefixes the header line, distinguishing it from data rows.
	headerMarker = "# "
	// delimiter separates fields within a line. Values must never contain it;
	// there is no escaping mechanism.
	delimiter = "\t"
)

// Create writes a new table at path consisting of a single header line with
// the given ordered column names. It fails with AlreadyExists if the file
// exists and is non-empty. An existing empty file is claimed.
func Create(ctx context.Context, path string, columns []string) (err error) {
	if len(columns) == 0 {
		return taberrors.BadValue("a table needs at least one column")
	}
	for _, name := range columns {
		if err := validateField(fmt.Sprintf("column name %q", name), name); err != nil {
			return err
		}
	}

	lock, err := Acquire(ctx, path)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, lock.Release()) }()

	if info, err := os.Stat(path); err == nil {
		if info.Size() > 0 {
			return taberrors.AlreadyExists(path)
		}
	} else if !os.IsNotExist(err) {
		return taberrors.IO("stat table file", err)
	}

	line := headerMarker + strings.Join(columns, delimiter) + "\n"
	if err := os.WriteFile(path, []byte(line), 0o644); err != nil {
		return taberrors.IO("write table header", err)
	}
	return nil
}

// ReadHeader returns the ordered column names of the table at path, marker
// prefix stripped. It fails with NotFound if the file does not exist or is
// empty (an empty file is a table that was never created).
func ReadHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, taberrors.NotFound(path)
		}
		return nil, taberrors.IO("open table file", err)
	}
	defer func() {
		_ = f.Close()
	}()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, taberrors.IO("read table header", err)
		}
		return nil, taberrors.NotFound(path)
	}
	return strings.Split(strings.TrimPrefix(scanner.Text(), headerMarker), delimiter), nil
}

// ColumnIndex returns the 1-based position of name in the header, or
// UnknownColumn if absent.
func ColumnIndex(header []string, name string) (int, error) {
	for i, col := range header {
		if col == name {
			return i + 1, nil
		}
	}
	return 0, taberrors.UnknownColumn(name)
}

// Insert appends one row to the table at path. values maps column names to
// field values; columns not listed default to the empty string. The row is
// laid out in header column order.
func Insert(ctx context.Context, path string, values map[string]string) (err error) {
	lock, err := Acquire(ctx, path)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, lock.Release()) }()

	header, err := ReadHeader(path)
	if err != nil {
		return err
	}
	for name, value := range values {
		if _, err := ColumnIndex(header, name); err != nil {
			return err
		}
		if err := validateField(fmt.Sprintf("value for column %q", name), value); err != nil {
			return err
		}
	}

	fields := make([]string, len(header))
	for i, name := range header {
		fields[i] = values[name]
	}
	return appendRow(path, strings.Join(fields, delimiter))
}

// Update rewrites the table at path, replacing the value of column with
// value on every row matching where. Every row passes through exactly once;
// row count and order are preserved. Returns the number of rows changed.
func Update(ctx context.Context, path, column, value, where string) (n int, err error) {
	if err := validateField(fmt.Sprintf("value for column %q", column), value); err != nil {
		return 0, err
	}

	lock, err := Acquire(ctx, path)
	if err != nil {
		return 0, err
	}
	defer func() { err = errors.Join(err, lock.Release()) }()

	header, err := ReadHeader(path)
	if err != nil {
		return 0, err
	}
	col, err := ColumnIndex(header, column)
	if err != nil {
		return 0, err
	}
	filter, err := ParseFilter(header, where)
	if err != nil {
		return 0, err
	}

	err = rewrite(path, func(fields []string) ([]string, bool) {
		if filter.Match(fields) {
			for len(fields) < col {
				fields = append(fields, "")
			}
			fields[col-1] = value
			n++
		}
		return fields, true
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Delete rewrites the table at path, dropping every row matching where.
// Survivor order is preserved. Returns the number of rows dropped.
func Delete(ctx context.Context, path, where string) (n int, err error) {
	lock, err := Acquire(ctx, path)
	if err != nil {
		return 0, err
	}
	defer func() { err = errors.Join(err, lock.Release()) }()

	header, err := ReadHeader(path)
	if err != nil {
		return 0, err
	}
	filter, err := ParseFilter(header, where)
	if err != nil {
		return 0, err
	}

	err = rewrite(path, func(fields []string) ([]string, bool) {
		if filter.Match(fields) {
			n++
			return nil, false
		}
		return fields, true
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Replace atomically replaces the table at path with the stream's content,
// under the table lock. The first line of the stream must be a header line;
// the rest is copied through verbatim. A missing table is created, so a
// stream can be imported under a new name.
func Replace(ctx context.Context, path string, r io.Reader) (err error) {
	lock, err := Acquire(ctx, path)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, lock.Release()) }()

	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return taberrors.IO("read import stream", err)
		}
		return taberrors.BadValue("import stream is empty")
	}
	header := scanner.Text()
	if !strings.HasPrefix(header, headerMarker) {
		return taberrors.BadValue("import stream does not start with a table header")
	}

	return commitRewrite(path, func(w *bufio.Writer) error {
		if _, err := w.WriteString(header); err != nil {
			return taberrors.IO("write table header", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return taberrors.IO("write table header", err)
		}
		for scanner.Scan() {
			if _, err := w.WriteString(scanner.Text()); err != nil {
				return taberrors.IO("write row", err)
			}
			if err := w.WriteByte('\n'); err != nil {
				return taberrors.IO("write row", err)
			}
		}
		if err := scanner.Err(); err != nil {
			return taberrors.IO("read import stream", err)
		}
		return nil
	})
}

// validateField rejects values that cannot be framed in the row format:
// the field delimiter and line terminators.
func validateField(what, s string) error {
	if strings.Contains(s, delimiter) {
		return taberrors.BadValue(what + " contains the field delimiter")
	}
	if strings.ContainsAny(s, "\n\r") {
		return taberrors.BadValue(what + " contains a line terminator")
	}
	return nil
}
