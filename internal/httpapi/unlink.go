package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *handlers) unlinkAccount(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	result, err := h.coord.UnlinkAccount(r.Context(), accountID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
