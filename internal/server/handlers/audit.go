package handlers

import (
	"context"

	"github.com/maruel/tabdb/internal/models"
	"github.com/maruel/tabdb/internal/storage"
)

// AuditHandler exposes the audit log.
type AuditHandler struct {
	audit *storage.AuditService
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(audit *storage.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// RecentAuditRequest is a request for recent audit entries.
type RecentAuditRequest struct {
	Limit int `query:"n" json:"-"`
}

// RecentAuditResponse lists audit entries, newest first.
type RecentAuditResponse struct {
	Entries []models.AuditEntry `json:"entries"`
}

// Recent returns the most recent audit entries, newest first.
func (h *AuditHandler) Recent(ctx context.Context, req RecentAuditRequest) (*RecentAuditResponse, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}
	entries, err := h.audit.Recent(limit)
	if err != nil {
		return nil, err
	}
	return &RecentAuditResponse{Entries: entries}, nil
}
