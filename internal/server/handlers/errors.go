// Provides helper functions for writing error responses.

package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	taberrors "github.com/maruel/tabdb/internal/errors"
)

// writeErrorResponse writes err as a JSON error response.
// Use this in raw http.HandlerFunc handlers that don't use server.Wrap.
func writeErrorResponse(w http.ResponseWriter, err error) {
	code := taberrors.CodeOf(err)
	if code == "" {
		code = "INTERNAL"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(taberrors.HTTPStatus(err))

	response := map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": err.Error(),
		},
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Failed to encode error response", "err", err)
	}
}
