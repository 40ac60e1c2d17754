package handlers

import (
	"context"

	"github.com/maruel/tabdb/internal/storage"
)

// HistoryHandler serves per-table commit history.
type HistoryHandler struct {
	history *storage.History
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(history *storage.History) *HistoryHandler {
	return &HistoryHandler{history: history}
}

// ListCommitsRequest is a request for a table's commit log.
type ListCommitsRequest struct {
	Table string `path:"table" json:"-"`
	Limit int    `query:"n" json:"-"`
}

// ListCommitsResponse lists commits touching one table, newest first.
type ListCommitsResponse struct {
	Commits []storage.Commit `json:"commits"`
}

// ListCommits returns the table's commit log, newest first.
func (h *HistoryHandler) ListCommits(ctx context.Context, req ListCommitsRequest) (*ListCommitsResponse, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	commits, err := h.history.Log(ctx, storage.TableRelPath(req.Table), limit)
	if err != nil {
		return nil, err
	}
	return &ListCommitsResponse{Commits: commits}, nil
}

// TableAtCommitRequest is a request for a table's content at one commit.
type TableAtCommitRequest struct {
	Table string `path:"table" json:"-"`
	Hash  string `path:"hash" json:"-"`
}

// TableAtCommitResponse carries the full table content at one commit.
type TableAtCommitResponse struct {
	Hash    string `json:"hash"`
	Content string `json:"content"`
}

// TableAtCommit returns the table file as it was at the given commit.
// "HEAD" resolves to the latest commit.
func (h *HistoryHandler) TableAtCommit(ctx context.Context, req TableAtCommitRequest) (*TableAtCommitResponse, error) {
	content, err := h.history.FileAtCommit(ctx, req.Hash, storage.TableRelPath(req.Table))
	if err != nil {
		return nil, err
	}
	return &TableAtCommitResponse{Hash: req.Hash, Content: string(content)}, nil
}
