package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/causahq/causa/pkg/auth"
	"github.com/causahq/causa/pkg/casefile"
	"github.com/causahq/causa/pkg/caselock"
	"github.com/causahq/causa/pkg/casestore"
	"github.com/causahq/causa/pkg/config"
	"github.com/causahq/causa/pkg/objectstore"
	"github.com/causahq/causa/pkg/orchestrator"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stubPlan replies immediately, standing in for the full node set.
type stubPlan struct{}

func (stubPlan) Name() string { return orchestrator.NodePlan }

func (stubPlan) Run(context.Context, *orchestrator.Turn) (orchestrator.NodeResult, error) {
	return orchestrator.Reply("am înregistrat mesajul", map[string]any{"confidence": 0.9}), nil
}

// stubPaymentWait activates the case on resume and hands over to plan.
type stubPaymentWait struct{}

func (stubPaymentWait) Name() string { return orchestrator.NodePaymentWait }

func (stubPaymentWait) Run(ctx context.Context, t *orchestrator.Turn) (orchestrator.NodeResult, error) {
	if t.Event.Kind != orchestrator.EventResume {
		return orchestrator.Reply("plata este încă în așteptare", nil), nil
	}
	if err := t.Services.Store.SetStatus(ctx, t.Case.ID, casefile.StatusActive); err != nil {
		return orchestrator.NodeResult{}, err
	}
	return orchestrator.Continue(orchestrator.NodePlan, nil), nil
}

type tokenValidator struct {
	claims *auth.Claims
	err    error
}

func (v tokenValidator) ValidateToken(context.Context, string) (*auth.Claims, error) {
	return v.claims, v.err
}

func (v tokenValidator) Close() error { return nil }

type testEnv struct {
	t       *testing.T
	store   casestore.Store
	objects *objectstore.LocalStore
	locker  *caselock.MemoryLocker
	srv     *Server
}

type envConfig struct {
	webhooks  *config.WebhooksConfig
	validator auth.TokenValidator
	objectTTL time.Duration
}

func newTestEnv(t *testing.T, mod ...func(*envConfig)) *testEnv {
	t.Helper()

	ec := envConfig{objectTTL: time.Minute}
	for _, m := range mod {
		m(&ec)
	}

	store := casestore.NewMemoryStore()
	seedCase(t, store, "case-1", casefile.StatusActive)
	seedCase(t, store, "case-2", casefile.StatusPaymentPending)

	objects, err := objectstore.NewLocalStore(&config.LocalStoreConfig{Dir: t.TempDir()}, ec.objectTTL)
	require.NoError(t, err)

	orchCfg := config.OrchestratorConfig{}
	orchCfg.SetDefaults()
	engine, err := orchestrator.NewEngine(&orchestrator.Services{
		Store:   store,
		Objects: objects,
		Config:  orchCfg,
	}, stubPlan{}, stubPaymentWait{})
	require.NoError(t, err)

	locker := caselock.NewMemoryLocker(time.Minute)
	handler, err := orchestrator.NewHandler(engine, locker, time.Minute)
	require.NoError(t, err)

	serverCfg := &config.ServerConfig{}
	serverCfg.SetDefaults()
	srv, err := New(serverCfg, ec.webhooks, Deps{
		Handler: handler,
		Store:   store,
		Objects: objects,
		Auth:    ec.validator,
	})
	require.NoError(t, err)

	return &testEnv{t: t, store: store, objects: objects, locker: locker, srv: srv}
}

func seedCase(t *testing.T, store casestore.Store, id string, status casefile.Status) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, store.Create(context.Background(), casefile.Case{
		ID:           id,
		Owner:        casefile.Owner{Kind: casefile.OwnerUser, ID: "user-1"},
		Status:       status,
		Tier:         2,
		UserLanguage: "ro",
		CreatedAt:    now,
		UpdatedAt:    now,
	}))
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) postMessage(caseID, userID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/cases/"+caseID+"/agent/messages", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	return e.do(req)
}

func (e *testEnv) postWebhook(body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/payments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(signatureHeader, signature)
	}
	return e.do(req)
}

func (e *testEnv) caseStatus(id string) casefile.Status {
	e.t.Helper()
	c, _, _, err := e.store.Load(context.Background(), id)
	require.NoError(e.t, err)
	return c.Status
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), "body: %s", rec.Body.String())
	return m
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestAgentMessageDelivered(t *testing.T) {
	e := newTestEnv(t)

	rec := e.postMessage("case-1", "user-1", `{"message":"Bună ziua, am primit o amendă."}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "am înregistrat mesajul", body["message"])
	assert.NotEmpty(t, body["timestamp"])

	metadata, ok := body["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 0.9, metadata["confidence"])
	assert.Contains(t, metadata, "execution_time_s")
}

func TestAgentMessageRejectsBadBodies(t *testing.T) {
	e := newTestEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{"oversized body", `{"message":"` + strings.Repeat("a", 9000) + `"}`},
		{"malformed json", `{"message":`},
		{"blank message", `{"message":"   "}`},
		{"missing message", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.postMessage("case-1", "user-1", tt.body)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, "error", body["status"])
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestAgentMessageIdentity(t *testing.T) {
	e := newTestEnv(t)

	t.Run("unauthenticated", func(t *testing.T) {
		rec := e.postMessage("case-1", "", `{"message":"salut"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong user", func(t *testing.T) {
		rec := e.postMessage("case-1", "intruder", `{"message":"salut"}`)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "error", decodeBody(t, rec)["status"])
	})

	t.Run("unknown case", func(t *testing.T) {
		rec := e.postMessage("case-404", "user-1", `{"message":"salut"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "error", decodeBody(t, rec)["status"])
	})
}

func TestAgentMessageBearerAuth(t *testing.T) {
	e := newTestEnv(t, func(ec *envConfig) {
		ec.validator = tokenValidator{claims: &auth.Claims{Subject: "user-1"}}
	})

	t.Run("missing token", func(t *testing.T) {
		rec := e.postMessage("case-1", "", `{"message":"salut"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/cases/case-1/agent/messages",
			strings.NewReader(`{"message":"salut"}`))
		req.Header.Set("Authorization", "Bearer token-1")
		rec := e.do(req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "success", decodeBody(t, rec)["status"])
	})
}

func TestAgentMessageBusy(t *testing.T) {
	e := newTestEnv(t)

	lease, err := e.locker.Acquire(context.Background(), "case-1", "other-request")
	require.NoError(t, err)

	rec := e.postMessage("case-1", "user-1", `{"message":"salut"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "busy", decodeBody(t, rec)["status"])

	require.NoError(t, e.locker.Release(context.Background(), lease))

	rec = e.postMessage("case-1", "user-1", `{"message":"salut"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPaymentWebhookResume(t *testing.T) {
	e := newTestEnv(t)
	body := []byte(`{"event_id":"evt-1","case_id":"case-2","tier":2,"status":"completed"}`)

	rec := e.postWebhook(body, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "success", decodeBody(t, rec)["status"])
	assert.Equal(t, casefile.StatusActive, e.caseStatus("case-2"))

	// The same event id a second time is acknowledged without rerunning.
	rec = e.postWebhook(body, "")
	require.Equal(t, http.StatusOK, rec.Code)
	dup := decodeBody(t, rec)
	assert.Equal(t, "success", dup["status"])
	assert.Equal(t, true, dup["idempotent"])
}

func TestPaymentWebhookSignature(t *testing.T) {
	e := newTestEnv(t, func(ec *envConfig) {
		ec.webhooks = &config.WebhooksConfig{PaymentSigningSecret: "s3cret"}
	})
	body := []byte(`{"event_id":"evt-2","case_id":"case-2","tier":2,"status":"completed"}`)

	t.Run("missing signature", func(t *testing.T) {
		rec := e.postWebhook(body, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong signature", func(t *testing.T) {
		rec := e.postWebhook(body, sign("other-secret", body))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid signature", func(t *testing.T) {
		rec := e.postWebhook(body, sign("s3cret", body))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "success", decodeBody(t, rec)["status"])
	})

	t.Run("prefixed signature", func(t *testing.T) {
		body := []byte(`{"event_id":"evt-3","case_id":"case-1","tier":2,"status":"completed"}`)
		rec := e.postWebhook(body, "sha256="+sign("s3cret", body))
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})
}

func TestPaymentWebhookValidation(t *testing.T) {
	e := newTestEnv(t)

	t.Run("malformed json", func(t *testing.T) {
		rec := e.postWebhook([]byte(`{"event_id":`), "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing ids", func(t *testing.T) {
		rec := e.postWebhook([]byte(`{"tier":2,"status":"completed"}`), "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("non-completion ignored", func(t *testing.T) {
		rec := e.postWebhook([]byte(`{"event_id":"evt-4","case_id":"case-2","tier":2,"status":"failed"}`), "")
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "success", body["status"])
		assert.Equal(t, true, body["ignored"])
		assert.Equal(t, casefile.StatusPaymentPending, e.caseStatus("case-2"))
	})

	t.Run("unknown case", func(t *testing.T) {
		rec := e.postWebhook([]byte(`{"event_id":"evt-5","case_id":"case-404","tier":2,"status":"completed"}`), "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestPaymentWebhookRetryAfterBusy(t *testing.T) {
	e := newTestEnv(t)
	body := []byte(`{"event_id":"evt-6","case_id":"case-2","tier":2,"status":"completed"}`)

	lease, err := e.locker.Acquire(context.Background(), "case-2", "other-request")
	require.NoError(t, err)

	rec := e.postWebhook(body, "")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, casefile.StatusPaymentPending, e.caseStatus("case-2"))

	require.NoError(t, e.locker.Release(context.Background(), lease))

	// The busy delivery released its claim, so the retry processes.
	rec = e.postWebhook(body, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body2 := decodeBody(t, rec)
	assert.Equal(t, "success", body2["status"])
	assert.Nil(t, body2["idempotent"])
	assert.Equal(t, casefile.StatusActive, e.caseStatus("case-2"))
}

func TestObjectDownload(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	content := []byte("%PDF-1.4 cerere de restituire")
	objectPath := "cases/case-1/drafts/cerere-restituire/rev-1.pdf"

	require.NoError(t, e.objects.Put(ctx, objectPath, content, "application/pdf"))
	signed, err := e.objects.SignedURL(ctx, objectPath)
	require.NoError(t, err)

	t.Run("signed link serves the object", func(t *testing.T) {
		rec := e.do(httptest.NewRequest(http.MethodGet, signed, nil))

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, content, rec.Body.Bytes())
		assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "rev-1.pdf")
	})

	t.Run("tampered signature rejected", func(t *testing.T) {
		u, err := url.Parse(signed)
		require.NoError(t, err)
		q := u.Query()
		q.Set("sig", "deadbeef")
		u.RawQuery = q.Encode()

		rec := e.do(httptest.NewRequest(http.MethodGet, u.String(), nil))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("tampered path rejected", func(t *testing.T) {
		other := "cases/case-9/drafts/cerere-restituire/rev-1.pdf"
		u, err := url.Parse(signed)
		require.NoError(t, err)
		u.Path = "/v1/objects/" + other

		rec := e.do(httptest.NewRequest(http.MethodGet, u.String(), nil))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("missing object", func(t *testing.T) {
		missing := "cases/case-1/drafts/cerere-restituire/rev-2.pdf"
		u, err := e.objects.SignedURL(ctx, missing)
		require.NoError(t, err, "signing does not require the object to exist yet")

		rec := e.do(httptest.NewRequest(http.MethodGet, u, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestObjectDownloadExpired(t *testing.T) {
	e := newTestEnv(t, func(ec *envConfig) { ec.objectTTL = -time.Second })
	ctx := context.Background()
	objectPath := "cases/case-1/attachments/contract.pdf"

	require.NoError(t, e.objects.Put(ctx, objectPath, []byte("%PDF-1.4"), "application/pdf"))
	signed, err := e.objects.SignedURL(ctx, objectPath)
	require.NoError(t, err)

	rec := e.do(httptest.NewRequest(http.MethodGet, signed, nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])

	rec = e.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	e := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/v1/cases/case-1/agent/messages", nil)
	req.Header.Set("Origin", "https://app.causa.example")
	rec := e.do(req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMemoryEventStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryEventStore(time.Hour)

	fresh, err := store.Claim(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = store.Claim(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, fresh)

	require.NoError(t, store.Forget(ctx, "evt-1"))
	fresh, err = store.Claim(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, fresh, "forgotten claims can be retaken")
}

func TestMemoryEventStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryEventStore(time.Hour)
	now := time.Now()
	store.now = func() time.Time { return now }

	fresh, err := store.Claim(ctx, "evt-1")
	require.NoError(t, err)
	require.True(t, fresh)

	store.now = func() time.Time { return now.Add(2 * time.Hour) }
	fresh, err = store.Claim(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, fresh, "claims expire after the TTL")
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"event_id":"evt-1"}`)

	assert.True(t, verifySignature("secret", body, sign("secret", body)))
	assert.True(t, verifySignature("secret", body, "sha256="+sign("secret", body)))
	assert.False(t, verifySignature("secret", body, sign("wrong", body)))
	assert.False(t, verifySignature("secret", body, ""))
	assert.False(t, verifySignature("secret", []byte("tampered"), sign("secret", body)))
}

func TestNewValidatesDeps(t *testing.T) {
	cfg := &config.ServerConfig{}
	cfg.SetDefaults()

	_, err := New(nil, nil, Deps{})
	assert.Error(t, err)

	_, err = New(cfg, nil, Deps{})
	assert.Error(t, err, "missing handler")
}

func TestEventStoreFactory(t *testing.T) {
	cfg := &config.IdempotencyConfig{Backend: config.IdempotencyBackendMemory, TTLHours: 72}
	store, err := NewEventStore(context.Background(), cfg)
	require.NoError(t, err)
	defer store.Close()

	_, ok := store.(*MemoryEventStore)
	assert.True(t, ok)

	_, err = NewEventStore(context.Background(), &config.IdempotencyConfig{Backend: "bogus"})
	assert.Error(t, err)
}
