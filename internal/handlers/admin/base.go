// Package admin is the thin operator CRUD surface SPEC_FULL.md carves
// out of the out-of-scope management service: routing-rule and budget
// CRUD glued directly onto the same store the core pipeline reads, a
// routing dry-run endpoint, and the live security-events feed. None of
// it sits on the request hot path.
package admin

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

type baseHandler struct {
	logger *zap.Logger
}

func (h *baseHandler) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("admin: failed to encode response", zap.Error(err))
	}
}

func (h *baseHandler) sendError(w http.ResponseWriter, status int, message string) {
	h.sendJSON(w, status, map[string]string{"error": message})
}
