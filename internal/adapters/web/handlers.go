package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"stock-tracker/internal/app"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Pinger reports whether the database is reachable. *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures NewHandler. Gatherer and DB are optional.
type Options struct {
	Service        app.ApplicationService
	JWTSecret      string
	AllowedOrigins string
	Logger         logrus.FieldLogger
	Gatherer       prometheus.Gatherer
	DB             Pinger
}

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc       app.ApplicationService
	router    chi.Router
	jwtSecret string
	logger    logrus.FieldLogger
	db        Pinger
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	h := &Handler{
		svc:       opts.Service,
		jwtSecret: opts.JWTSecret,
		logger:    logger.WithField("module", "web"),
		db:        opts.DB,
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(h.logger))
	r.Use(Recoverer(h.logger))
	r.Use(CORS(opts.AllowedOrigins))

	// ── Public ────────────────────────────────────────────────────────────────
	r.Get("/api/health", h.health)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	// ── Protected API routes (return 401 JSON if unauthenticated) ────────────
	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)
		r.Use(RequestBodyLimit(1 << 20)) // 1 MB

		r.Get("/api/auth/me", h.me)

		// ── Units ─────────────────────────────────────────────────────────────
		r.Get("/api/units", h.apiListUnits)
		r.Get("/api/units/{id}", h.apiGetUnit)
		r.Post("/api/units/{id}/changes", h.apiSubmitChange)
		r.Post("/api/units/{id}/changes/interpret", h.apiInterpretChange)

		// ── Sales ─────────────────────────────────────────────────────────────
		r.Get("/api/sales", h.apiListSales)
		r.Get("/api/sales/{id}", h.apiGetSale)

		// ── Admin only ────────────────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin)

			r.Post("/api/units", h.apiCreateUnits)
			r.Post("/api/units/bulk/status", h.apiBulkStatus)
			r.Post("/api/units/bulk/assign", h.apiBulkAssign)
			r.Post("/api/units/bulk/delete", h.apiBulkDelete)

			r.Post("/api/sales/{id}/paid", h.apiMarkPaid)

			r.Get("/api/pending", h.apiListPending)
			r.Get("/api/pending/decided", h.apiListDecided)
			r.Post("/api/pending/{id}/approve", h.apiApprovePending)
			r.Post("/api/pending/{id}/reject", h.apiRejectPending)

			r.Get("/api/reports/leaderboard", h.apiLeaderboard)
			r.Get("/api/reports/unpaid", h.apiUnpaidAging)
			r.Get("/api/reports/commissions", h.apiCommissions)
		})
	})

	h.router = r
	return r
}

// health pings the database when one is configured.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Status   string `json:"status"`
		Database string `json:"database,omitempty"`
	}

	if h.db == nil {
		writeJSON(w, response{Status: "ok"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		h.logger.WithError(err).Warn("health check: database unreachable")
		writeJSONStatus(w, http.StatusServiceUnavailable, response{Status: "degraded", Database: "unreachable"})
		return
	}
	writeJSON(w, response{Status: "ok", Database: "ok"})
}

// decodeJSON decodes the request body into v and returns false + writes an appropriate
// error response on failure. Returns HTTP 413 when the body exceeds the size limit set
// by RequestBodyLimit middleware; HTTP 400 for all other decode errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	return true
}

// pathID parses the {id} URL parameter, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, "invalid id", "BAD_REQUEST", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
