package web

import (
	"net/http"
	"time"
)

// reportRange reads the optional from/to query parameters; writes a 400 on failure.
func reportRange(w http.ResponseWriter, r *http.Request) (from, to *time.Time, ok bool) {
	q := r.URL.Query()
	from, err := queryDate(q, "from")
	if err == nil {
		to, err = queryDate(q, "to")
	}
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return nil, nil, false
	}
	return from, to, true
}

func (h *Handler) apiLeaderboard(w http.ResponseWriter, r *http.Request) {
	from, to, ok := reportRange(w, r)
	if !ok {
		return
	}
	actor, _ := actorFromContext(r.Context())
	rows, err := h.svc.Leaderboard(r.Context(), actor, from, to)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, rows)
}

// apiUnpaidAging handles GET /api/reports/unpaid?as_of=YYYY-MM-DD (default: now).
func (h *Handler) apiUnpaidAging(w http.ResponseWriter, r *http.Request) {
	asOf, err := queryDate(r.URL.Query(), "as_of")
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	at := time.Now()
	if asOf != nil {
		at = *asOf
	}
	actor, _ := actorFromContext(r.Context())
	report, err := h.svc.UnpaidAging(r.Context(), actor, at)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, report)
}

func (h *Handler) apiCommissions(w http.ResponseWriter, r *http.Request) {
	from, to, ok := reportRange(w, r)
	if !ok {
		return
	}
	actor, _ := actorFromContext(r.Context())
	lines, err := h.svc.Commissions(r.Context(), actor, from, to)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, lines)
}
