package handlers

import (
	"context"
	"strings"

	taberrors "github.com/maruel/tabdb/internal/errors"
	"github.com/maruel/tabdb/internal/models"
	"github.com/maruel/tabdb/internal/storage"
)

// TableHandler handles table and row HTTP requests.
type TableHandler struct {
	store *storage.Store
}

// NewTableHandler creates a new table handler.
func NewTableHandler(store *storage.Store) *TableHandler {
	return &TableHandler{store: store}
}

// ListTablesRequest is a request to list all tables.
type ListTablesRequest struct{}

// ListTablesResponse is a response containing every table with its columns.
type ListTablesResponse struct {
	Tables []models.TableInfo `json:"tables"`
}

// ListTables lists every table with its column layout.
func (h *TableHandler) ListTables(ctx context.Context, req ListTablesRequest) (*ListTablesResponse, error) {
	tables, err := h.store.Tables()
	if err != nil {
		return nil, err
	}
	return &ListTablesResponse{Tables: tables}, nil
}

// CreateTableRequest is a request to create an empty table.
type CreateTableRequest struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

// CreateTable creates an empty table from an ordered column list.
func (h *TableHandler) CreateTable(ctx context.Context, req CreateTableRequest) (*models.TableInfo, error) {
	if err := h.store.CreateTable(ctx, req.Name, req.Columns); err != nil {
		return nil, err
	}
	return &models.TableInfo{Name: req.Name, Columns: req.Columns}, nil
}

// SelectRowsRequest is a request to read rows with optional projection and
// filter.
type SelectRowsRequest struct {
	Table   string `path:"table" json:"-"`
	Columns string `query:"cols" json:"-"`
	Where   string `query:"where" json:"-"`
}

// SelectRowsResponse carries the projected header and the matching rows.
type SelectRowsResponse struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// SelectRows returns the table's rows under the requested projection and
// filter. The first line of the underlying stream is the projected header.
func (h *TableHandler) SelectRows(ctx context.Context, req SelectRowsRequest) (*SelectRowsResponse, error) {
	rows, err := h.store.SelectRows(req.Table, splitColumns(req.Columns), req.Where)
	if err != nil {
		return nil, err
	}

	resp := &SelectRowsResponse{Rows: [][]string{}}
	first := true
	for line, err := range rows {
		if err != nil {
			return nil, err
		}
		fields := strings.Split(line, "\t")
		if first {
			first = false
			resp.Columns = fields
			continue
		}
		resp.Rows = append(resp.Rows, fields)
	}
	return resp, nil
}

// InsertRowRequest is a request to append one row. Columns absent from
// values are stored as empty strings.
type InsertRowRequest struct {
	Table  string            `path:"table" json:"-"`
	Values map[string]string `json:"values"`
}

// MutationResponse reports how many rows a mutation touched.
type MutationResponse struct {
	Affected int `json:"affected"`
}

// InsertRow appends one row to the table.
func (h *TableHandler) InsertRow(ctx context.Context, req InsertRowRequest) (*MutationResponse, error) {
	if len(req.Values) == 0 {
		return nil, taberrors.BadValue("values is required")
	}
	if err := h.store.InsertRow(ctx, req.Table, req.Values); err != nil {
		return nil, err
	}
	return &MutationResponse{Affected: 1}, nil
}

// UpdateRowsRequest is a request to set one column on every matching row.
type UpdateRowsRequest struct {
	Table  string `path:"table" json:"-"`
	Column string `json:"column"`
	Value  string `json:"value"`
	Where  string `json:"where"`
}

// UpdateRows rewrites the table, setting column to value on rows matching
// where.
func (h *TableHandler) UpdateRows(ctx context.Context, req UpdateRowsRequest) (*MutationResponse, error) {
	n, err := h.store.UpdateRows(ctx, req.Table, req.Column, req.Value, req.Where)
	if err != nil {
		return nil, err
	}
	return &MutationResponse{Affected: n}, nil
}

// DeleteRowsRequest is a request to drop every matching row.
type DeleteRowsRequest struct {
	Table string `path:"table" json:"-"`
	Where string `query:"where" json:"-"`
}

// DeleteRows rewrites the table, dropping rows matching where.
func (h *TableHandler) DeleteRows(ctx context.Context, req DeleteRowsRequest) (*MutationResponse, error) {
	n, err := h.store.DeleteRows(ctx, req.Table, req.Where)
	if err != nil {
		return nil, err
	}
	return &MutationResponse{Affected: n}, nil
}

// splitColumns turns a comma-separated projection into a column list.
// Empty input selects every column.
func splitColumns(cols string) []string {
	if cols == "" {
		return nil
	}
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
