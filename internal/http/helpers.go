package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"presupuesto/internal/core"
	"presupuesto/internal/services"
	"presupuesto/internal/storage"
)

// DefaultModuleKey names the budget module inside a project; other
// planning modules may live beside it under their own keys.
const DefaultModuleKey = "presupuesto"

// scopeFromRequest resolves which snapshot a request addresses. The
// user comes from the X-User-ID header (single-tenant deployments can
// omit it), the project from the query string.
func scopeFromRequest(r *http.Request) (storage.Scope, error) {
	user := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if user == "" {
		user = "local"
	}
	project := strings.TrimSpace(r.URL.Query().Get("project"))
	if project == "" {
		return storage.Scope{}, fmt.Errorf("missing project parameter")
	}
	module := strings.TrimSpace(r.URL.Query().Get("module"))
	if module == "" {
		module = DefaultModuleKey
	}
	return storage.Scope{UserID: user, ProjectID: project, ModuleKey: module}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps service errors onto HTTP statuses: validation
// problems are 422, missing records 404, the rest 500 with a generic
// body so internals do not leak.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	case errors.Is(err, core.ErrItemNotFound), errors.Is(err, storage.ErrExpenseNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	default:
		slog.ErrorContext(r.Context(), "Request failed",
			"method", r.Method, "url", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

// invalidate drops the read caches for a scope after a mutation.
func (s *Server) invalidate(scope storage.Scope) {
	key := scope.String()
	s.summaryCache.Delete(key)
	s.varianceCache.Delete(key)
}
