// Package httptransport composes the platform's HTTP surface. It wires the
// middleware chain and mounts each module's handler; business logic stays in
// the services.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	auditapi "pagemd/internal/audit/handler"
	clinicapi "pagemd/internal/clinic/handler"
	governanceapi "pagemd/internal/governance/handler"
	"pagemd/internal/platform/config"
	"pagemd/internal/platform/middleware"
	chainapi "pagemd/internal/platformaudit/handler"
)

// Handlers collects the per-module HTTP handlers mounted under the operator
// API.
type Handlers struct {
	Governance *governanceapi.Handler
	Clinics    *clinicapi.Handler
	Chain      *chainapi.Handler
	Audit      *auditapi.Handler
}

// NewRouter builds the full router. Health and metrics are public; everything
// else requires a platform operator token and runs inside the request context
// chain so audit stamping works end to end.
func NewRouter(h Handlers, validator middleware.OperatorValidator, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Recovery(logger))
		r.Use(middleware.RequestID)
		r.Use(middleware.RequestTime)
		r.Use(middleware.ClientMetadata)
		r.Use(middleware.Logger(logger))
		r.Use(middleware.Timeout(config.RequestTimeout))
		r.Use(middleware.RequireOperator(validator, logger))

		h.Governance.Register(r)
		h.Clinics.Register(r)
		h.Chain.Register(r)
		h.Audit.Register(r)
	})

	return r
}
