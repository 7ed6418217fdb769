package httpapi

import (
	"net/http"

	"github.com/RamXX/tminus/internal/tminuserrors"
)

func (h *handlers) getSyncHealth(w http.ResponseWriter, r *http.Request) {
	health, err := h.coord.GetSyncHealth(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, health)
}

func (h *handlers) getActiveMirrors(w http.ResponseWriter, r *http.Request) {
	mirrors, err := h.coord.GetActiveMirrors(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mirrors)
}

type logReconcileDiscrepancyRequest struct {
	CanonicalEventID string `json:"canonical_event_id"`
	Subtype          string `json:"subtype"`
	Reason           string `json:"reason"`
}

func (h *handlers) logReconcileDiscrepancy(w http.ResponseWriter, r *http.Request) {
	var req logReconcileDiscrepancyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, tminuserrors.NewValidation("malformed request body: %v", err))
		return
	}
	if req.CanonicalEventID == "" || req.Subtype == "" {
		writeErr(w, tminuserrors.NewValidation("canonical_event_id and subtype are required"))
		return
	}
	if err := h.coord.LogReconcileDiscrepancy(r.Context(), req.CanonicalEventID, req.Subtype, req.Reason); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
