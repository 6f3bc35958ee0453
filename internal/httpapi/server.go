// Package httpapi implements the HTTP Gateway (C8, spec.md §6): the
// ingress/egress surface over the Watchtower Core and Co-Signer Service.
// Grounded on the teacher's services/otc-gateway/server.Server
// (buildRouter/New/Handler shape, chi + chimw.RequestID/RealIP/Logger/
// Recoverer stack) and services/payments-gateway/server.go's
// readBody/writeJSON/writeError/maxRequestBody convention.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/stackflow/watchtower/internal/cosigner"
	"github.com/stackflow/watchtower/internal/watchtower"
)

const maxRequestBody = 5 << 20 // 5 MiB, spec.md §6

// Config carries the Server's dependencies.
type Config struct {
	Core              *watchtower.Core
	Cosigner          *cosigner.Service
	CosignerPrincipal string
	Logger            *slog.Logger

	ServiceName   string
	MetricsEnable bool
	TracingEnable bool
	StaticDir     string // filesystem directory backing /app, empty disables it
}

// Server exposes the HTTP Gateway's router.
type Server struct {
	core              *watchtower.Core
	cosigner          *cosigner.Service
	cosignerPrincipal string
	logger            *slog.Logger

	staticDir string
	metrics   *metricsRegistry

	router http.Handler
}

// New constructs a configured HTTP router (spec.md §6).
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "watchtower"
	}
	s := &Server{
		core:              cfg.Core,
		cosigner:          cfg.Cosigner,
		cosignerPrincipal: cfg.CosignerPrincipal,
		logger:            cfg.Logger,
		staticDir:         cfg.StaticDir,
		metrics:           newMetricsRegistry(cfg.ServiceName),
	}
	s.router = s.buildRouter(cfg)
	return s
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.requestLoggingMiddleware)
	r.Use(s.metricsMiddleware)
	if cfg.TracingEnable {
		r.Use(func(next http.Handler) http.Handler {
			return otelhttp.NewHandler(next, "watchtower.http")
		})
	}

	r.Get("/health", s.handleHealth)
	r.Get("/closures", s.handleListClosures)
	r.Get("/signature-states", s.handleListSignatureStates)
	r.Get("/pipes", s.handleListPipes)
	r.Get("/dispute-attempts", s.handleListDisputeAttempts)
	r.Get("/events", s.handleListEvents)

	r.Post("/signature-states", s.handleUpsertSignatureState)
	r.Post("/counterparty/transfer", s.handleCounterpartyTransfer)
	r.Post("/counterparty/signature-request", s.handleCounterpartySignatureRequest)

	r.Post("/new_block", s.handleNewBlock)
	r.Post("/new_burn_block", s.handleNewBurnBlock)
	r.Post("/new_mempool_tx", s.handleIgnored)
	r.Post("/drop_mempool_tx", s.handleIgnored)
	r.Post("/new_microblocks", s.handleIgnored)

	if cfg.MetricsEnable {
		r.Handle("/metrics", s.metrics.Handler())
	}

	s.mountStatic(r)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not-found", "no such route")
	})

	return r
}
