package orchestrator

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/causahq/causa/pkg/billing"
	"github.com/causahq/causa/pkg/casefile"
	"github.com/causahq/causa/pkg/caselock"
	"github.com/causahq/causa/pkg/casestore"
	"github.com/causahq/causa/pkg/config"
	"github.com/causahq/causa/pkg/fault"
	"github.com/causahq/causa/pkg/kb"
	"github.com/causahq/causa/pkg/llms"
	"github.com/causahq/causa/pkg/objectstore"
	"github.com/causahq/causa/pkg/partystore"
	"github.com/causahq/causa/pkg/prompt"
	"github.com/causahq/causa/pkg/ticket"
	"github.com/causahq/causa/pkg/tools"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubKB struct{}

func (stubKB) Query(context.Context, kb.QueryDescriptor) ([]kb.Record, error) { return nil, nil }
func (stubKB) Close() error                                                   { return nil }

func newToolRegistry(t *testing.T, store casestore.Store, tickets ticket.Service) *tools.Registry {
	t.Helper()
	objects, err := objectstore.NewLocalStore(&config.LocalStoreConfig{Dir: t.TempDir()}, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = objects.Close() })

	reg, err := tools.NewRegistry(tools.Deps{
		Store:        store,
		Parties:      partystore.NewMemory(),
		Billing:      billing.NewMemory(),
		Tickets:      tickets,
		Objects:      objects,
		KB:           stubKB{},
		Reasoner:     llms.NewClientWithProvider(llms.RoleReasoner, llms.NewFakeProvider("fake-reasoner")),
		Orchestrator: testConfig(),
	})
	require.NoError(t, err)
	return reg
}

func newTestHandler(t *testing.T, e *Engine, locker caselock.Locker) *Handler {
	t.Helper()
	h, err := NewHandler(e, locker, time.Minute)
	require.NoError(t, err)
	return h
}

func TestPrincipalCanAccess(t *testing.T) {
	user := Principal{UserID: "user-1"}
	member := Principal{UserID: "user-2", OrgIDs: []string{"org-1", "org-2"}}

	assert.True(t, user.CanAccess(casefile.Owner{Kind: casefile.OwnerUser, ID: "user-1"}))
	assert.False(t, user.CanAccess(casefile.Owner{Kind: casefile.OwnerUser, ID: "user-2"}))
	assert.False(t, user.CanAccess(casefile.Owner{Kind: casefile.OwnerOrganization, ID: "user-1"}))
	assert.True(t, member.CanAccess(casefile.Owner{Kind: casefile.OwnerOrganization, ID: "org-2"}))
	assert.False(t, member.CanAccess(casefile.Owner{Kind: casefile.OwnerOrganization, ID: "org-3"}))
	assert.False(t, user.CanAccess(casefile.Owner{}))
}

func TestHandleSuccessReply(t *testing.T) {
	store := casestore.NewMemoryStore()
	seedCase(t, store, casefile.StatusActive)
	e := newTestEngine(t, store, testConfig(), replyWith(NodePlan, "Am înțeles situația."))
	locker := caselock.NewMemoryLocker(time.Minute)
	h := newTestHandler(t, e, locker)

	resp := h.Handle(context.Background(), Request{
		CaseID:    "case-1",
		Principal: Principal{UserID: "user-1"},
		Event:     UserMessage("bună ziua"),
	})

	assert.Equal(t, StatusSuccess, resp.Status)
	assert.Equal(t, http.StatusOK, resp.HTTPStatus)
	assert.Equal(t, "Am înțeles situația.", resp.Message)
	assert.False(t, resp.Timestamp.IsZero())
	require.NotNil(t, resp.Metadata)
	assert.Contains(t, resp.Metadata, "execution_time_s")

	// The lease is gone once the request finishes.
	_, err := locker.Acquire(context.Background(), "case-1", "someone-else")
	assert.NoError(t, err)
}

func TestHandleSuspendedResponse(t *testing.T) {
	store := casestore.NewMemoryStore()
	seedCase(t, store, casefile.StatusActive)
	e := newTestEngine(t, store, testConfig(),
		step(NodePlan, func(context.Context, *Turn) (NodeResult, error) {
			return Suspend(SuspendAwaitingPayment, NodePaymentWait, "Vă rugăm să achitați."), nil
		}),
	)
	h := newTestHandler(t, e, caselock.NewMemoryLocker(time.Minute))

	resp := h.Handle(context.Background(), Request{
		CaseID:    "case-1",
		Principal: Principal{UserID: "user-1"},
		Event:     UserMessage("continuăm"),
	})

	assert.Equal(t, StatusSuspended, resp.Status)
	assert.Equal(t, SuspendAwaitingPayment, resp.Reason)
	assert.Equal(t, http.StatusOK, resp.HTTPStatus)
	assert.Equal(t, "Vă rugăm să achitați.", resp.Message)
}

func TestHandleRejectsForeignUser(t *testing.T) {
	store := casestore.NewMemoryStore()
	seedCase(t, store, casefile.StatusActive)
	e := newTestEngine(t, store, testConfig(), replyWith(NodePlan, "nu"))
	locker := caselock.NewMemoryLocker(time.Minute)
	h := newTestHandler(t, e, locker)

	resp := h.Handle(context.Background(), Request{
		CaseID:    "case-1",
		Principal: Principal{UserID: "intruder"},
		Event:     UserMessage("arată-mi dosarul"),
	})

	assert.Equal(t, StatusError, resp.Status)
	assert.Equal(t, http.StatusForbidden, resp.HTTPStatus)
	assert.Equal(t, prompt.Canned("ro", prompt.MsgApology), resp.Message)

	// Authorization is checked before the lock is taken.
	_, err := locker.Acquire(context.Background(), "case-1", "user-1")
	assert.NoError(t, err)
}

func TestHandleAllowsOrgMember(t *testing.T) {
	store := casestore.NewMemoryStore()
	seedCase(t, store, casefile.StatusActive, func(c *casefile.Case) {
		c.Owner = casefile.Owner{Kind: casefile.OwnerOrganization, ID: "org-9"}
	})
	e := newTestEngine(t, store, testConfig(), replyWith(NodePlan, "Sigur."))
	h := newTestHandler(t, e, caselock.NewMemoryLocker(time.Minute))

	resp := h.Handle(context.Background(), Request{
		CaseID:    "case-1",
		Principal: Principal{UserID: "user-7", OrgIDs: []string{"org-9"}},
		Event:     UserMessage("salut"),
	})

	assert.Equal(t, StatusSuccess, resp.Status)
}

func TestHandleUnknownCase(t *testing.T) {
	store := casestore.NewMemoryStore()
	e := newTestEngine(t, store, testConfig())
	h := newTestHandler(t, e, caselock.NewMemoryLocker(time.Minute))

	resp := h.Handle(context.Background(), Request{
		CaseID:    "no-such-case",
		Principal: Principal{UserID: "user-1"},
		Event:     UserMessage("salut"),
	})

	assert.Equal(t, StatusError, resp.Status)
	assert.Equal(t, http.StatusNotFound, resp.HTTPStatus)
}

func TestHandleBusyCase(t *testing.T) {
	store := casestore.NewMemoryStore()
	seedCase(t, store, casefile.StatusActive)
	e := newTestEngine(t, store, testConfig(), replyWith(NodePlan, "gata"))
	locker := caselock.NewMemoryLocker(time.Minute)
	h := newTestHandler(t, e, locker)

	lease, err := locker.Acquire(context.Background(), "case-1", "other-request")
	require.NoError(t, err)

	resp := h.Handle(context.Background(), Request{
		CaseID:    "case-1",
		Principal: Principal{UserID: "user-1"},
		Event:     UserMessage("ești acolo?"),
	})

	assert.Equal(t, StatusBusy, resp.Status)
	assert.Equal(t, http.StatusConflict, resp.HTTPStatus)
	assert.Equal(t, prompt.Canned("ro", prompt.MsgBusy), resp.Message)

	require.NoError(t, locker.Release(context.Background(), lease))
	resp = h.Handle(context.Background(), Request{
		CaseID:    "case-1",
		Principal: Principal{UserID: "user-1"},
		Event:     UserMessage("și acum?"),
	})
	assert.Equal(t, StatusSuccess, resp.Status)
}

func TestHandleEscalatesUnrecoveredFault(t *testing.T) {
	store := casestore.NewMemoryStore()
	seedCase(t, store, casefile.StatusActive)
	tickets := ticket.NewMemory()
	reg := newToolRegistry(t, store, tickets)

	// No handle-error node registered: the failure escapes the run and the
	// handler must file the ticket itself.
	e, err := NewEngine(&Services{Store: store, Tools: reg, Config: testConfig()},
		step(NodePlan, func(context.Context, *Turn) (NodeResult, error) {
			return NodeResult{}, fault.New(fault.PermanentBackend, "casestore", "apply_updates", "write refused", nil)
		}),
	)
	require.NoError(t, err)
	h := newTestHandler(t, e, caselock.NewMemoryLocker(time.Minute))

	resp := h.Handle(context.Background(), Request{
		CaseID:    "case-1",
		Principal: Principal{UserID: "user-1"},
		Event:     UserMessage("hai"),
	})

	assert.Equal(t, StatusError, resp.Status)
	assert.Equal(t, http.StatusInternalServerError, resp.HTTPStatus)
	assert.Equal(t, prompt.Canned("ro", prompt.MsgTicketOpened, "TICKET-1"), resp.Message)

	filed := tickets.Tickets()
	require.Len(t, filed, 1)
	assert.Contains(t, filed[0].Summary, "case-1")

	c, _, _, err := store.Load(context.Background(), "case-1")
	require.NoError(t, err)
	assert.Equal(t, casefile.StatusPausedSupport, c.Status)
}

func TestHandleApologizesWhenTicketingImpossible(t *testing.T) {
	store := casestore.NewMemoryStore()
	seedCase(t, store, casefile.StatusActive)

	e, err := NewEngine(&Services{Store: store, Config: testConfig()},
		step(NodePlan, func(context.Context, *Turn) (NodeResult, error) {
			return NodeResult{}, fault.New(fault.PermanentBackend, "kb", "query", "index corrupt", nil)
		}),
	)
	require.NoError(t, err)
	h := newTestHandler(t, e, caselock.NewMemoryLocker(time.Minute))

	resp := h.Handle(context.Background(), Request{
		CaseID:    "case-1",
		Principal: Principal{UserID: "user-1"},
		Event:     UserMessage("hai"),
	})

	assert.Equal(t, StatusError, resp.Status)
	assert.Equal(t, http.StatusInternalServerError, resp.HTTPStatus)
	assert.Equal(t, prompt.Canned("ro", prompt.MsgApology), resp.Message)
}

func TestHandleDoesNotTicketCallerFaults(t *testing.T) {
	store := casestore.NewMemoryStore()
	seedCase(t, store, casefile.StatusArchived)
	tickets := ticket.NewMemory()
	reg := newToolRegistry(t, store, tickets)

	e, err := NewEngine(&Services{Store: store, Tools: reg, Config: testConfig()})
	require.NoError(t, err)
	h := newTestHandler(t, e, caselock.NewMemoryLocker(time.Minute))

	resp := h.Handle(context.Background(), Request{
		CaseID:    "case-1",
		Principal: Principal{UserID: "user-1"},
		Event:     UserMessage("redeschide dosarul"),
	})

	assert.Equal(t, StatusError, resp.Status)
	assert.Equal(t, http.StatusBadRequest, resp.HTTPStatus)
	assert.Equal(t, prompt.Canned("ro", prompt.MsgApology), resp.Message)
	assert.Empty(t, tickets.Tickets())
}
