package tabfile

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"

	taberrors "github.com/maruel/tabdb/internal/errors"
)

// commitRewrite writes new table content to a fresh temp file in the same
// directory as path, then renames it over path. The rename is the commit
// point: until it succeeds the original file is untouched, and on any
// failure the temp file is removed and the original remains. The caller
// must hold the table's lock.
func commitRewrite(path string, write func(w *bufio.Writer) error) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return taberrors.IO("create temp file", err)
	}
	tmpPath := f.Name()

	w := bufio.NewWriter(f)
	if err := write(w); err != nil {
		return errors.Join(err, f.Close(), os.Remove(tmpPath))
	}
	if err := w.Flush(); err != nil {
		return errors.Join(taberrors.IO("flush temp file", err), f.Close(), os.Remove(tmpPath))
	}
	if err := f.Close(); err != nil {
		return errors.Join(taberrors.IO("close temp file", err), os.Remove(tmpPath))
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Join(taberrors.IO("rename temp file", err), os.Remove(tmpPath))
	}
	return nil
}

// appendRow appends one line to the table file. Insert's single-line append
// does not need the full rewrite path.
func appendRow(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return taberrors.IO("open table file for append", err)
	}
	defer func() {
		_ = f.Close()
	}()

	if _, err := f.WriteString(line); err != nil {
		return taberrors.IO("write row", err)
	}
	if _, err := f.WriteString("\n"); err != nil {
		return taberrors.IO("write newline", err)
	}
	return nil
}
