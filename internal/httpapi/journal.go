package httpapi

import (
	"net/http"
	"strconv"

	"github.com/RamXX/tminus/internal/coordinator"
	"github.com/RamXX/tminus/internal/domain"
	"github.com/RamXX/tminus/internal/tminuserrors"
)

func (h *handlers) queryJournal(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := coordinator.JournalQuery{
		CanonicalEventID: q.Get("canonical_event_id"),
		Actor:            q.Get("actor"),
		ChangeType:       domain.ChangeType(q.Get("change_type")),
	}
	var err error
	if query.Since, err = parseOptionalTime(q.Get("since")); err != nil {
		writeErr(w, tminuserrors.NewValidation("invalid since: %v", err))
		return
	}
	if query.Until, err = parseOptionalTime(q.Get("until")); err != nil {
		writeErr(w, tminuserrors.NewValidation("invalid until: %v", err))
		return
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			writeErr(w, tminuserrors.NewValidation("invalid limit: %v", err))
			return
		}
		query.Limit = n
	}
	entries, err := h.coord.QueryJournal(r.Context(), query)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
