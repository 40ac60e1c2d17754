package tabfile

import (
	"bufio"
	"iter"
	"os"
	"strings"

	taberrors "github.com/maruel/tabdb/internal/errors"
)

// Select streams the projected header followed by the projected, filtered
// data rows of the table at path. columns is the projection: an ordered
// list of column names, duplicates allowed, each occurrence emitted; nil,
// empty, or the single element "*" projects all columns in header order.
// where is an optional filter expression; empty matches every row.
//
// Validation errors (NotFound, UnknownColumn, BadFilter) are returned
// eagerly. The returned sequence is lazy and finite but not restartable:
// each range re-reads the file from the start, and read failures are
// yielded as the second value. Select takes no lock; see the package
// comment for the consistency tradeoff.
func Select(path string, columns []string, where string) (iter.Seq2[string, error], error) {
	header, err := ReadHeader(path)
	if err != nil {
		return nil, err
	}
	proj, err := resolveProjection(header, columns)
	if err != nil {
		return nil, err
	}
	var filter *Filter
	if where != "" {
		if filter, err = ParseFilter(header, where); err != nil {
			return nil, err
		}
	}

	headerLine := projectFields(header, proj)
	return func(yield func(string, error) bool) {
		// The header is always emitted first; the filter never applies to it.
		if !yield(headerLine, nil) {
			return
		}
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				yield("", taberrors.NotFound(path))
			} else {
				yield("", taberrors.IO("open table file", err))
			}
			return
		}
		defer func() {
			_ = f.Close()
		}()

		scanner := bufio.NewScanner(f)
		first := true
		for scanner.Scan() {
			if first {
				first = false
				continue
			}
			fields := strings.Split(scanner.Text(), delimiter)
			if !filter.Match(fields) {
				continue
			}
			if !yield(projectFields(fields, proj), nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield("", taberrors.IO("read table file", err))
		}
	}, nil
}

// resolveProjection maps the projection's column names to 1-based header
// positions. nil, empty, or a lone "*" selects every column in header order.
func resolveProjection(header []string, columns []string) ([]int, error) {
	if len(columns) == 0 || (len(columns) == 1 && columns[0] == "*") {
		idx := make([]int, len(header))
		for i := range header {
			idx[i] = i + 1
		}
		return idx, nil
	}
	idx := make([]int, 0, len(columns))
	for _, name := range columns {
		i, err := ColumnIndex(header, name)
		if err != nil {
			return nil, err
		}
		idx = append(idx, i)
	}
	return idx, nil
}

// projectFields reduces fields to the given 1-based positions, in order,
// joined by the delimiter.
func projectFields(fields []string, idx []int) string {
	parts := make([]string, len(idx))
	for k, i := range idx {
		parts[k] = fieldAt(fields, i)
	}
	return strings.Join(parts, delimiter)
}

// fieldAt returns the field at the 1-based position, or "" when the row is
// shorter than the position. Rows shorter than the header never panic.
func fieldAt(fields []string, idx int) string {
	if idx < 1 || idx > len(fields) {
		return ""
	}
	return fields[idx-1]
}

// rewrite streams every data row of path through transform and atomically
// replaces the file with the result. The header line is carried over
// unchanged. transform returns the output fields and whether the row is
// kept; update keeps every row, delete drops the matching ones.
func rewrite(path string, transform func(fields []string) ([]string, bool)) error {
	src, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return taberrors.NotFound(path)
		}
		return taberrors.IO("open table file", err)
	}
	defer func() {
		_ = src.Close()
	}()

	return commitRewrite(path, func(w *bufio.Writer) error {
		scanner := bufio.NewScanner(src)
		first := true
		for scanner.Scan() {
			line := scanner.Text()
			if first {
				first = false
			} else {
				fields, keep := transform(strings.Split(line, delimiter))
				if !keep {
					continue
				}
				line = strings.Join(fields, delimiter)
			}
			if _, err := w.WriteString(line); err != nil {
				return taberrors.IO("write row", err)
			}
			if err := w.WriteByte('\n'); err != nil {
				return taberrors.IO("write row", err)
			}
		}
		if err := scanner.Err(); err != nil {
			return taberrors.IO("read table file", err)
		}
		return nil
	})
}
