package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Config controls the router's cross-cutting concerns. It mirrors the
// teacher's config.Config fields consumed by router.go
// (AllowedOrigins, MaxBodyBytes) without importing internal/config,
// so a later internal/config package constructs one from env vars
// rather than this package depending on it.
type Config struct {
	AllowedOrigins []string
	MaxBodyBytes   int64
}

// DefaultConfig mirrors the teacher's 1MB default body cap and an
// open CORS policy suitable for local/dev use.
func DefaultConfig() Config {
	return Config{AllowedOrigins: []string{"*"}, MaxBodyBytes: 1 << 20}
}

// NewRouter builds the HTTP surface for the coordinator's RPCs,
// following the teacher's router.go shape: the middleware chain on the
// root router (so it also wraps the unauthenticated health endpoints),
// then a versioned route group. The teacher's auth/rate-limit
// middleware is out of scope per spec.md's Non-goals, so that group
// adds none of its own.
func NewRouter(cfg Config, logger zerolog.Logger, coord Coordinator) http.Handler {
	r := chi.NewRouter()

	r.Use(corsMiddleware(cfg.AllowedOrigins))
	r.Use(securityHeadersMiddleware)
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(requestLoggerMiddleware(logger))
	r.Use(maxBodySizeMiddleware(cfg.MaxBodyBytes))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	h := &handlers{coord: coord, logger: logger}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/provider-deltas", h.applyProviderDelta)

		r.Post("/events", h.upsertCanonicalEvent)
		r.Get("/events", h.listCanonicalEvents)
		r.Get("/events/{id}", h.getCanonicalEvent)
		r.Patch("/events/{id}", h.upsertCanonicalEvent)
		r.Delete("/events/{id}", h.deleteCanonicalEvent)
		r.Get("/events/by-origin/{originAccountID}/{originEventID}", h.findCanonicalByOrigin)
		r.Post("/events/recompute-projections", h.recomputeProjections)

		r.Get("/journal", h.queryJournal)

		r.Post("/availability", h.computeAvailability)

		r.Get("/sync-health", h.getSyncHealth)
		r.Get("/mirrors/active", h.getActiveMirrors)
		r.Post("/reconcile-discrepancies", h.logReconcileDiscrepancy)

		r.Post("/policies", h.createPolicy)
		r.Get("/policies", h.listPolicies)
		r.Get("/policies/{id}", h.getPolicy)
		r.Get("/policies/{id}/edges", h.getPolicyEdges)
		r.Put("/policies/{id}/edges", h.setPolicyEdges)
		r.Post("/policies/ensure-default", h.ensureDefaultPolicy)

		r.Post("/accounts/{accountID}/unlink", h.unlinkAccount)

		r.Post("/constraints", h.addConstraint)
		r.Get("/constraints", h.listConstraints)
		r.Get("/constraints/{id}", h.getConstraint)
		r.Delete("/constraints/{id}", h.deleteConstraint)
	})

	return r
}

// handlers holds the dependencies every §6.3 operation needs. The
// teacher splits one struct per resource (PolicyHandler,
// ProvidersHandler, ...); §6.3's operations are thin pass-throughs to
// a single coordinator, so one struct covers them all here, with the
// methods split across files by resource the same way the teacher
// splits its handler package.
type handlers struct {
	coord  Coordinator
	logger zerolog.Logger
}
