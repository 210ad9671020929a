package web

import (
	"net/http"
)

func (h *Handler) apiListPending(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	result, err := h.svc.ListPending(r.Context(), actor)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) apiListDecided(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r.URL.Query(), "limit")
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	actor, _ := actorFromContext(r.Context())
	result, err := h.svc.ListDecided(r.Context(), actor, limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiApprovePending handles POST /api/pending/{id}/approve. When the live unit no longer
// accepts the change the update stays pending and the engine's error is returned.
func (h *Handler) apiApprovePending(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor, _ := actorFromContext(r.Context())
	change, err := h.svc.ApprovePending(r.Context(), actor, id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, change)
}

// apiRejectPending handles POST /api/pending/{id}/reject. The body is optional.
func (h *Handler) apiRejectPending(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength != 0 && !decodeJSON(w, r, &body) {
		return
	}
	actor, _ := actorFromContext(r.Context())
	p, err := h.svc.RejectPending(r.Context(), actor, id, body.Reason)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, p)
}
