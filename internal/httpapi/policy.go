package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/RamXX/tminus/internal/domain"
	"github.com/RamXX/tminus/internal/tminuserrors"
)

type createPolicyRequest struct {
	Name string `json:"name"`
}

func (h *handlers) createPolicy(w http.ResponseWriter, r *http.Request) {
	var req createPolicyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, tminuserrors.NewValidation("malformed request body: %v", err))
		return
	}
	if req.Name == "" {
		writeErr(w, tminuserrors.NewValidation("name is required"))
		return
	}
	policy, err := h.coord.CreatePolicy(r.Context(), req.Name)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, policy)
}

func (h *handlers) listPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.coord.ListPolicies(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, policies)
}

func (h *handlers) getPolicy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	policy, err := h.coord.GetPolicy(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, policy)
}

func (h *handlers) getPolicyEdges(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	edges, err := h.coord.GetPolicyEdges(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, edges)
}

type setPolicyEdgesRequest struct {
	Edges []domain.PolicyEdge `json:"edges"`
}

func (h *handlers) setPolicyEdges(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req setPolicyEdgesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, tminuserrors.NewValidation("malformed request body: %v", err))
		return
	}
	if err := h.coord.SetPolicyEdges(r.Context(), id, req.Edges); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type ensureDefaultPolicyRequest struct {
	AccountIDs []string `json:"account_ids"`
}

func (h *handlers) ensureDefaultPolicy(w http.ResponseWriter, r *http.Request) {
	var req ensureDefaultPolicyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, tminuserrors.NewValidation("malformed request body: %v", err))
		return
	}
	policy, err := h.coord.EnsureDefaultPolicy(r.Context(), req.AccountIDs)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, policy)
}
