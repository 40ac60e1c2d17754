// Invalidates cached headers when table files change on disk.

package storage

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watch invalidates cached headers when table files change on disk,
// typically from a CLI invocation running against the same data
// directory as the server. The watcher stops when ctx is cancelled.
func (s *Store) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(s.tablesDir); err != nil {
		_ = w.Close()
		return err
	}
	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				name := filepath.Base(event.Name)
				// Lock directories and rewrite temp files churn on
				// every mutation and never carry a header.
				if strings.HasSuffix(name, ".lock") || strings.HasSuffix(name, ".tmp") {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
					event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
					s.headers.invalidate(event.Name)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				// Events may have been dropped; trust nothing cached.
				s.headers.invalidateAll()
				slog.WarnContext(ctx, "Error watching table directory", "err", err)
			}
		}
	}()
	return nil
}
