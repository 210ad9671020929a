package web

import (
	"net/http"

	"stock-tracker/internal/core"
)

// apiListSales handles GET /api/sales.
// Filters: seller_id, unpaid=true, from, to (YYYY-MM-DD, to exclusive), limit.
func (h *Handler) apiListSales(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := core.SaleFilter{UnpaidOnly: q.Get("unpaid") == "true"}

	var err error
	if filter.SoldByUserID, err = queryInt64(q, "seller_id"); err == nil {
		if filter.From, err = queryDate(q, "from"); err == nil {
			if filter.To, err = queryDate(q, "to"); err == nil {
				filter.Limit, err = queryInt(q, "limit")
			}
		}
	}
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	result, err := h.svc.ListSales(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiGetSale handles GET /api/sales/{id}.
func (h *Handler) apiGetSale(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	result, err := h.svc.GetSale(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiMarkPaid handles POST /api/sales/{id}/paid. Idempotent.
func (h *Handler) apiMarkPaid(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor, _ := actorFromContext(r.Context())
	sale, err := h.svc.MarkPaid(r.Context(), actor, id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, sale)
}
