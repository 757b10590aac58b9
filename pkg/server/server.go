// Package server is the HTTP surface of the agent: the per-case message
// endpoint, the payment webhook, signed object downloads, health and
// metrics. Everything case-related funnels into the orchestrator handler;
// this package only speaks HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/causahq/causa/pkg/auth"
	"github.com/causahq/causa/pkg/casestore"
	"github.com/causahq/causa/pkg/config"
	"github.com/causahq/causa/pkg/fault"
	"github.com/causahq/causa/pkg/objectstore"
	"github.com/causahq/causa/pkg/observability"
	"github.com/causahq/causa/pkg/orchestrator"
)

const component = "server"

// Deps are the collaborators the server routes requests into.
type Deps struct {
	// Handler runs agent events end to end.
	Handler *orchestrator.Handler

	// Store is read directly only by the payment webhook, which derives
	// its principal from the case owner.
	Store casestore.Store

	// Objects backs the signed download endpoint.
	Objects objectstore.Store

	// Auth validates bearer tokens on the case endpoints. Nil switches to
	// the X-User-ID header identity (development only).
	Auth auth.TokenValidator

	// Events is the webhook replay guard. Nil falls back to an in-memory
	// store with the default TTL.
	Events EventStore
}

// Server owns the router and the http.Server lifecycle.
type Server struct {
	cfg      *config.ServerConfig
	secret   string
	handler  *orchestrator.Handler
	store    casestore.Store
	objects  objectstore.Store
	auth     auth.TokenValidator
	events   EventStore
	router   chi.Router
	httpServ *http.Server
}

// New assembles the router. webhooks may be nil, which disables signature
// verification and uses the in-memory replay guard.
func New(cfg *config.ServerConfig, webhooks *config.WebhooksConfig, deps Deps) (*Server, error) {
	if cfg == nil {
		return nil, fault.New(fault.Validation, component, "new", "server config is not set", nil)
	}
	if deps.Handler == nil {
		return nil, fault.New(fault.Validation, component, "new", "orchestrator handler is not set", nil)
	}
	if deps.Store == nil {
		return nil, fault.New(fault.Validation, component, "new", "case store is not set", nil)
	}
	if deps.Objects == nil {
		return nil, fault.New(fault.Validation, component, "new", "object store is not set", nil)
	}

	s := &Server{
		cfg:     cfg,
		handler: deps.Handler,
		store:   deps.Store,
		objects: deps.Objects,
		auth:    deps.Auth,
		events:  deps.Events,
	}
	if webhooks != nil {
		s.secret = webhooks.PaymentSigningSecret
	}
	if s.events == nil {
		s.events = NewMemoryEventStore(defaultEventTTL)
	}

	s.router = s.routes()
	return s, nil
}

// routes builds the middleware chain and the endpoint tree. Order matters:
// logging wraps everything, metrics sees the final status, CORS answers
// preflights before auth can reject them.
func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(requestLogger)
	r.Use(metricsMiddleware)
	if s.cfg.CORSEnabled == nil || *s.cfg.CORSEnabled {
		r.Use(corsMiddleware)
	}

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", observability.MetricsHandler().ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/cases/{case_id}/agent", func(r chi.Router) {
			if s.auth != nil {
				r.Use(auth.Middleware(s.auth))
			} else {
				r.Use(auth.HeaderIdentity())
			}
			r.Post("/messages", s.handleAgentMessage)
		})

		// Webhooks authenticate by HMAC signature, downloads by signed
		// path; neither carries a bearer token.
		r.Post("/webhooks/payments", s.handlePaymentWebhook)
		r.Get("/objects/*", s.handleObject)
	})

	return r
}

// Handler exposes the assembled router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServ = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("HTTP server starting", "addr", addr, "auth_enabled", s.auth != nil)
	if err := s.httpServ.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and closes the replay guard.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServ != nil {
		if err := s.httpServ.Shutdown(ctx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
	}
	if err := s.events.Close(); err != nil {
		slog.Warn("Event store close failed", "error", err)
	}
	slog.Info("HTTP server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
