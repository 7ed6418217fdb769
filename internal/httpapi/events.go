package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/RamXX/tminus/internal/coordinator"
	"github.com/RamXX/tminus/internal/domain"
	"github.com/RamXX/tminus/internal/tminuserrors"
)

type applyProviderDeltaRequest struct {
	OriginAccountID string                      `json:"origin_account_id"`
	Deltas          []coordinator.ProviderDelta `json:"deltas"`
}

func (h *handlers) applyProviderDelta(w http.ResponseWriter, r *http.Request) {
	var req applyProviderDeltaRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, tminuserrors.NewValidation("malformed request body: %v", err))
		return
	}
	if req.OriginAccountID == "" {
		writeErr(w, tminuserrors.NewValidation("origin_account_id is required"))
		return
	}
	result, err := h.coord.ApplyProviderDelta(r.Context(), req.OriginAccountID, req.Deltas)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type upsertCanonicalEventRequest struct {
	Event domain.CanonicalEvent `json:"event"`
	Actor domain.Source         `json:"actor"`
}

func (h *handlers) upsertCanonicalEvent(w http.ResponseWriter, r *http.Request) {
	var req upsertCanonicalEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, tminuserrors.NewValidation("malformed request body: %v", err))
		return
	}
	if id := chi.URLParam(r, "id"); id != "" {
		req.Event.CanonicalEventID = id
	}
	ev, err := h.coord.UpsertCanonicalEvent(r.Context(), req.Event, req.Actor)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (h *handlers) deleteCanonicalEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor := domain.Source(r.URL.Query().Get("actor"))
	if actor == "" {
		actor = domain.SourceAPI
	}
	result, err := h.coord.DeleteCanonicalEvent(r.Context(), id, actor)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handlers) listCanonicalEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := coordinator.ListQuery{
		OriginAccountID: q.Get("origin_account_id"),
		OriginEventID:   q.Get("origin_event_id"),
		Source:          domain.Source(q.Get("source")),
	}
	var err error
	if query.TimeMin, err = parseOptionalTime(q.Get("time_min")); err != nil {
		writeErr(w, tminuserrors.NewValidation("invalid time_min: %v", err))
		return
	}
	if query.TimeMax, err = parseOptionalTime(q.Get("time_max")); err != nil {
		writeErr(w, tminuserrors.NewValidation("invalid time_max: %v", err))
		return
	}
	if query.UpdatedAfter, err = parseOptionalTime(q.Get("updated_after")); err != nil {
		writeErr(w, tminuserrors.NewValidation("invalid updated_after: %v", err))
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
	events, err := h.coord.ListCanonicalEvents(r.Context(), query)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *handlers) getCanonicalEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ev, err := h.coord.GetCanonicalEvent(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (h *handlers) findCanonicalByOrigin(w http.ResponseWriter, r *http.Request) {
	originAccountID := chi.URLParam(r, "originAccountID")
	originEventID := chi.URLParam(r, "originEventID")
	ev, ok, err := h.coord.FindCanonicalByOrigin(r.Context(), originAccountID, originEventID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if !ok {
		writeErr(w, tminuserrors.NewNotFound("canonical_event", originAccountID+"/"+originEventID))
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

type recomputeProjectionsRequest struct {
	CanonicalEventID      string `json:"canonical_event_id"`
	ForceRequeueNonActive bool   `json:"force_requeue_non_active"`
}

func (h *handlers) recomputeProjections(w http.ResponseWriter, r *http.Request) {
	var req recomputeProjectionsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, tminuserrors.NewValidation("malformed request body: %v", err))
		return
	}
	n, err := h.coord.RecomputeProjections(r.Context(), coordinator.RecomputeOptions{
		CanonicalEventID:      req.CanonicalEventID,
		ForceRequeueNonActive: req.ForceRequeueNonActive,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"recomputed": n})
}

func parseOptionalTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
