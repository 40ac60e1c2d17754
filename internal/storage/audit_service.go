// Append-only audit trail of table mutations in the _audit system table.

package storage

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/maruel/ksid"
	taberrors "github.com/maruel/tabdb/internal/errors"
	"github.com/maruel/tabdb/internal/models"
	"github.com/maruel/tabdb/internal/tabfile"
)

const auditTable = "_audit"

// AuditService appends one row to the _audit table per mutation.
// Entries are never updated or deleted by the application.
type AuditService struct {
	path    string
	columns []string
}

// NewAuditService opens or creates the _audit table.
func NewAuditService(ctx context.Context, store *Store) (*AuditService, error) {
	columns, err := tabfile.ColumnsOf[models.AuditEntry]()
	if err != nil {
		return nil, err
	}
	path := store.systemTablePath(auditTable)
	if err := tabfile.Create(ctx, path, columns); err != nil {
		if taberrors.CodeOf(err) != taberrors.CodeAlreadyExists {
			return nil, err
		}
	}
	return &AuditService{path: path, columns: columns}, nil
}

// Record appends an audit entry. The entry ID is generated here.
func (s *AuditService) Record(ctx context.Context, actor, op, table, detail string) error {
	return tabfile.Insert(ctx, s.path, map[string]string{
		"id":     ksid.NewID().String(),
		"at":     time.Now().UTC().Format(time.RFC3339Nano),
		"actor":  actor,
		"op":     op,
		"table":  table,
		"detail": sanitizeDetail(detail),
	})
}

// Recent returns up to n audit entries, newest first.
func (s *AuditService) Recent(n int) ([]models.AuditEntry, error) {
	rows, err := tabfile.Select(s.path, nil, "")
	if err != nil {
		return nil, err
	}
	var entries []models.AuditEntry
	first := true
	for line, err := range rows {
		if err != nil {
			return nil, err
		}
		if first {
			first = false
			continue
		}
		f := strings.Split(line, "\t")
		for len(f) < len(s.columns) {
			f = append(f, "")
		}
		at, _ := time.Parse(time.RFC3339Nano, f[1])
		entries = append(entries, models.AuditEntry{
			ID: f[0], At: at, Actor: f[2], Op: f[3], Table: f[4], Detail: f[5],
		})
	}
	// Rows are appended in order, so the tail is the newest.
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Observer returns a mutation observer that records audit entries for
// user table writes, attributing them to the authenticated user when
// present in the context.
func (s *AuditService) Observer() func(context.Context, Mutation) {
	return func(ctx context.Context, m Mutation) {
		actor := "system"
		if user := models.GetUser(ctx); user != nil {
			actor = user.ID
		}
		if err := s.Record(ctx, actor, m.Op, m.Table, m.Detail); err != nil {
			slog.ErrorContext(ctx, "Failed to record audit entry", "err", err, "op", m.Op, "table", m.Table)
		}
	}
}

// sanitizeDetail makes an arbitrary string storable as a field value.
func sanitizeDetail(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\t', '\n', '\r':
			return ' '
		}
		return r
	}, s)
}
