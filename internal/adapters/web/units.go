package web

import (
	"net/http"
	"strings"

	"stock-tracker/internal/app"
	"stock-tracker/internal/core"
)

// apiListUnits handles GET /api/units.
// Filters: status, kind, batch, region_id, team_id, user_id, q, limit, offset.
func (h *Handler) apiListUnits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := core.UnitFilter{
		BatchNumber: strings.TrimSpace(q.Get("batch")),
		Query:       strings.TrimSpace(q.Get("q")),
	}
	if s := q.Get("status"); s != "" {
		status := core.UnitStatus(s)
		if !status.Valid() {
			writeError(w, r, "unknown status "+s, "BAD_REQUEST", http.StatusBadRequest)
			return
		}
		filter.Status = &status
	}
	if k := q.Get("kind"); k != "" {
		kind := core.UnitKind(k)
		filter.Kind = &kind
	}

	var err error
	if filter.RegionID, err = queryInt64(q, "region_id"); err == nil {
		if filter.TeamID, err = queryInt64(q, "team_id"); err == nil {
			if filter.UserID, err = queryInt64(q, "user_id"); err == nil {
				if filter.Limit, err = queryInt(q, "limit"); err == nil {
					filter.Offset, err = queryInt(q, "offset")
				}
			}
		}
	}
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	result, err := h.svc.ListUnits(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiGetUnit handles GET /api/units/{id}.
func (h *Handler) apiGetUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	result, err := h.svc.GetUnit(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiCreateUnits handles POST /api/units. The body is either one unit or {"units": [...]}.
func (h *Handler) apiCreateUnits(w http.ResponseWriter, r *http.Request) {
	var body struct {
		core.NewUnit
		Units []core.NewUnit `json:"units"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	units := body.Units
	if len(units) == 0 {
		units = []core.NewUnit{body.NewUnit}
	}

	actor, _ := actorFromContext(r.Context())
	result, err := h.svc.CreateUnits(r.Context(), actor, units)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, result)
}

// apiSubmitChange handles POST /api/units/{id}/changes.
// Admin changes are applied (200); agent changes are queued (202).
func (h *Handler) apiSubmitChange(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		core.ChangeIntent
		Note string `json:"note"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	actor, _ := actorFromContext(r.Context())
	result, err := h.svc.SubmitChange(r.Context(), actor, app.ChangeRequest{
		UnitID: id,
		Intent: body.ChangeIntent,
		Note:   body.Note,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if result.IsQueued() {
		writeJSONStatus(w, http.StatusAccepted, result)
		return
	}
	writeJSON(w, result)
}

// apiInterpretChange handles POST /api/units/{id}/changes/interpret.
// A clarification question comes back with 200; a queued proposal with 202.
func (h *Handler) apiInterpretChange(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		Text string `json:"text"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	actor, _ := actorFromContext(r.Context())
	result, err := h.svc.ProposeFromText(r.Context(), actor, app.TextProposalRequest{UnitID: id, Text: body.Text})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if result.IsClarification {
		writeJSON(w, result)
		return
	}
	writeJSONStatus(w, http.StatusAccepted, result)
}

// apiBulkStatus handles POST /api/units/bulk/status.
func (h *Handler) apiBulkStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UnitIDs []int64         `json:"unit_ids"`
		Status  core.UnitStatus `json:"status"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	actor, _ := actorFromContext(r.Context())
	result, err := h.svc.BulkSetStatus(r.Context(), actor, app.BulkStatusRequest{UnitIDs: body.UnitIDs, Status: body.Status})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiBulkAssign handles POST /api/units/bulk/assign.
// team_id / user_id: absent keeps the current value, null clears it.
func (h *Handler) apiBulkAssign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UnitIDs []int64 `json:"unit_ids"`
		core.AssignmentPatch
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	actor, _ := actorFromContext(r.Context())
	result, err := h.svc.BulkAssign(r.Context(), actor, app.BulkAssignRequest{UnitIDs: body.UnitIDs, Patch: body.AssignmentPatch})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiBulkDelete handles POST /api/units/bulk/delete. Irreversible; requires "confirm": true.
func (h *Handler) apiBulkDelete(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UnitIDs []int64 `json:"unit_ids"`
		Confirm bool    `json:"confirm"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	actor, _ := actorFromContext(r.Context())
	result, err := h.svc.DeleteUnits(r.Context(), actor, app.DeleteUnitsRequest{UnitIDs: body.UnitIDs, Confirm: body.Confirm})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}
