// Package runtime assembles a serving process from configuration: the
// document stores, the case lock, blob storage, the knowledge base, the
// external collaborator clients, both LLM roles, the orchestrator and the
// HTTP server. The CLI owns flags and signals; everything between config
// and a listening server lives here.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/causahq/causa/pkg/auth"
	"github.com/causahq/causa/pkg/billing"
	"github.com/causahq/causa/pkg/caselock"
	"github.com/causahq/causa/pkg/casestore"
	"github.com/causahq/causa/pkg/config"
	"github.com/causahq/causa/pkg/docparse"
	"github.com/causahq/causa/pkg/fault"
	"github.com/causahq/causa/pkg/kb"
	"github.com/causahq/causa/pkg/llms"
	"github.com/causahq/causa/pkg/maintenance"
	"github.com/causahq/causa/pkg/nodes"
	"github.com/causahq/causa/pkg/objectstore"
	"github.com/causahq/causa/pkg/observability"
	"github.com/causahq/causa/pkg/orchestrator"
	"github.com/causahq/causa/pkg/partystore"
	"github.com/causahq/causa/pkg/server"
	"github.com/causahq/causa/pkg/ticket"
	"github.com/causahq/causa/pkg/tools"
)

const component = "runtime"

// closeTimeout bounds backend teardown in Close.
const closeTimeout = 10 * time.Second

// Runtime holds every long-lived component of one serving process.
type Runtime struct {
	cfg *config.Config

	obs       *observability.Manager
	store     casestore.Store
	parties   *partystore.Store
	locker    caselock.Locker
	objects   objectstore.Store
	kb        kb.KnowledgeBase
	billing   billing.Service
	tickets   ticket.Service
	llm       *llms.Pair
	validator auth.TokenValidator
	events    server.EventStore

	handler *orchestrator.Handler
	server  *server.Server
	sched   *maintenance.Scheduler
}

// New builds the full component tree from a processed config. On failure
// everything constructed so far is torn down before the error returns.
func New(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	if cfg == nil {
		return nil, fault.New(fault.Validation, component, "new", "config is required", nil)
	}
	r := &Runtime{cfg: cfg}
	if err := r.build(ctx); err != nil {
		if cerr := r.Close(); cerr != nil {
			slog.Warn("Partial runtime teardown failed", "error", cerr)
		}
		return nil, err
	}
	return r, nil
}

func (r *Runtime) build(ctx context.Context) error {
	obs := observability.NewManager(r.cfg.Observability)
	if err := obs.Initialize(ctx); err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	r.obs = obs

	store, err := casestore.New(ctx, &r.cfg.Stores.Case)
	if err != nil {
		return fmt.Errorf("case store: %w", err)
	}
	r.store = store

	parties, err := partystore.New(ctx, &r.cfg.Stores.Party)
	if err != nil {
		return fmt.Errorf("party store: %w", err)
	}
	r.parties = parties

	locker, err := caselock.New(ctx, &r.cfg.Lock)
	if err != nil {
		return fmt.Errorf("case lock: %w", err)
	}
	r.locker = locker

	objects, err := objectstore.New(ctx, &r.cfg.ObjectStore)
	if err != nil {
		return fmt.Errorf("object store: %w", err)
	}
	r.objects = objects

	kbase, err := kb.New(ctx, r.cfg.KB)
	if err != nil {
		return fmt.Errorf("knowledge base: %w", err)
	}
	r.kb = kbase

	r.billing = billing.New(&r.cfg.Billing)
	r.tickets = ticket.New(&r.cfg.Ticketing)

	pair, err := llms.NewPair(ctx, r.cfg.LLM)
	if err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	r.llm = pair

	registry, err := tools.NewRegistry(tools.Deps{
		Store:        r.store,
		Parties:      r.parties,
		Billing:      r.billing,
		Tickets:      r.tickets,
		Objects:      r.objects,
		KB:           r.kb,
		Reasoner:     pair.Reasoner,
		Orchestrator: r.cfg.Orchestrator,
	})
	if err != nil {
		return fmt.Errorf("tools: %w", err)
	}

	engine, err := orchestrator.NewEngine(&orchestrator.Services{
		Store:   r.store,
		Parties: r.parties,
		Tools:   registry,
		LLM:     r.llm,
		Objects: r.objects,
		Docs:    docparse.NewRegistry(),
		Config:  r.cfg.Orchestrator,
	}, nodes.Standard()...)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	timeout := time.Duration(r.cfg.Server.RequestTimeoutSeconds) * time.Second
	handler, err := orchestrator.NewHandler(engine, r.locker, timeout)
	if err != nil {
		return fmt.Errorf("handler: %w", err)
	}
	r.handler = handler

	validator, err := auth.FromConfig(r.cfg.Server.Auth)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	r.validator = validator

	events, err := server.NewEventStore(ctx, &r.cfg.Webhooks.Idempotency)
	if err != nil {
		return fmt.Errorf("webhook idempotency: %w", err)
	}
	r.events = events

	srv, err := server.New(&r.cfg.Server, &r.cfg.Webhooks, server.Deps{
		Handler: handler,
		Store:   r.store,
		Objects: r.objects,
		Auth:    validator,
		Events:  events,
	})
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}
	r.server = srv

	sched, err := maintenance.New(r.cfg.Maintenance, maintenance.Deps{
		Store:   r.store,
		Locker:  r.locker,
		Objects: r.objects,
	})
	if err != nil {
		return fmt.Errorf("maintenance: %w", err)
	}
	r.sched = sched

	return nil
}

// Config returns the processed configuration the runtime was built from.
func (r *Runtime) Config() *config.Config {
	return r.cfg
}

// Server returns the HTTP server.
func (r *Runtime) Server() *server.Server {
	return r.server
}

// Handler returns the orchestrator request handler.
func (r *Runtime) Handler() *orchestrator.Handler {
	return r.handler
}

// Scheduler returns the maintenance scheduler.
func (r *Runtime) Scheduler() *maintenance.Scheduler {
	return r.sched
}

// Close releases every backend in reverse construction order. The HTTP
// server and the webhook replay guard are shut down by Run; Close covers
// them only when the build failed before the server existed.
func (r *Runtime) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	var errs []error
	closeOne := func(name string, fn func() error) {
		if err := fn(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	if r.events != nil && r.server == nil {
		closeOne("webhook idempotency", r.events.Close)
	}
	if r.validator != nil {
		closeOne("auth", r.validator.Close)
	}
	if r.llm != nil {
		closeOne("llm", r.llm.Close)
	}
	if r.kb != nil {
		closeOne("knowledge base", r.kb.Close)
	}
	if r.objects != nil {
		closeOne("object store", r.objects.Close)
	}
	if r.locker != nil {
		closeOne("case lock", r.locker.Close)
	}
	if r.parties != nil {
		closeOne("party store", r.parties.Close)
	}
	if r.store != nil {
		closeOne("case store", r.store.Close)
	}
	if r.obs != nil {
		closeOne("observability", func() error { return r.obs.Shutdown(ctx) })
	}
	return errors.Join(errs...)
}
