package httpapi

import (
	"net/http"
	"time"

	"github.com/RamXX/tminus/internal/coordinator"
	"github.com/RamXX/tminus/internal/tminuserrors"
)

type computeAvailabilityRequest struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Accounts []string  `json:"accounts,omitempty"`
}

func (h *handlers) computeAvailability(w http.ResponseWriter, r *http.Request) {
	var req computeAvailabilityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, tminuserrors.NewValidation("malformed request body: %v", err))
		return
	}
	if !req.End.After(req.Start) {
		writeErr(w, tminuserrors.NewValidation("end must be after start"))
		return
	}
	result, err := h.coord.ComputeAvailability(r.Context(), coordinator.AvailabilityQuery{
		Start:    req.Start,
		End:      req.End,
		Accounts: req.Accounts,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
