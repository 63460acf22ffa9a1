// Package users exposes user management endpoints.
package users

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ninebudget/ninebudget/internal/http/middleware"
	"github.com/ninebudget/ninebudget/internal/httputil"
	"github.com/ninebudget/ninebudget/pkg/lifecycle"
)

// Handler handles user management endpoints.
type Handler struct {
	logger    *slog.Logger
	lifecycle *lifecycle.Service
}

// NewHandler creates a new users handler.
func NewHandler(logger *slog.Logger, svc *lifecycle.Service) *Handler {
	return &Handler{logger: logger, lifecycle: svc}
}

// Delete removes a user belonging to the caller's account.
// DELETE /v1/users/{id}
//
// Deleting a user that does not exist, or that belongs to a different
// account, is a no-op: the response is 204 either way.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid user id")
		return
	}

	requester, ok := middleware.GetRequesterAccount(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "missing account identity")
		return
	}

	if err := h.lifecycle.Delete(r.Context(), id, requester); err != nil {
		h.logger.Error("user deletion failed", "error", err, "user_id", id)
		httputil.Error(w, http.StatusInternalServerError, "user deletion failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
