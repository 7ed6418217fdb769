package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/RamXX/tminus/internal/domain"
	"github.com/RamXX/tminus/internal/tminuserrors"
)

type addConstraintRequest struct {
	Kind       domain.ConstraintKind `json:"kind"`
	ConfigJSON string                `json:"config_json"`
	ActiveFrom *time.Time            `json:"active_from,omitempty"`
	ActiveTo   *time.Time            `json:"active_to,omitempty"`
}

func (h *handlers) addConstraint(w http.ResponseWriter, r *http.Request) {
	var req addConstraintRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, tminuserrors.NewValidation("malformed request body: %v", err))
		return
	}
	if req.Kind == "" {
		writeErr(w, tminuserrors.NewValidation("kind is required"))
		return
	}
	c, err := h.coord.AddConstraint(r.Context(), req.Kind, req.ConfigJSON, req.ActiveFrom, req.ActiveTo)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *handlers) deleteConstraint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ok, err := h.coord.DeleteConstraint(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	if !ok {
		writeErr(w, tminuserrors.NewNotFound("constraint", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) listConstraints(w http.ResponseWriter, r *http.Request) {
	kind := domain.ConstraintKind(r.URL.Query().Get("kind"))
	constraints, err := h.coord.ListConstraints(r.Context(), kind)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, constraints)
}

func (h *handlers) getConstraint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := h.coord.GetConstraint(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
