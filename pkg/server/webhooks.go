package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/causahq/causa/pkg/fault"
	"github.com/causahq/causa/pkg/observability"
	"github.com/causahq/causa/pkg/orchestrator"
)

// signatureHeader carries the hex HMAC-SHA256 of the raw body, keyed with
// the shared payment signing secret. An optional "sha256=" prefix is
// accepted.
const signatureHeader = "X-Causa-Signature"

// paymentEvent is the billing collaborator's webhook body.
type paymentEvent struct {
	EventID string `json:"event_id"`
	CaseID  string `json:"case_id"`
	Tier    int    `json:"tier"`
	Status  string `json:"status"`
}

// handlePaymentWebhook turns a payment completion into a resume event.
//
// Replay protection works by claiming the event id before running the
// resume: a duplicate delivery acknowledges without touching the case. When
// the resume itself fails or the case is busy, the claim is released so the
// collaborator's retry can land.
func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeProtocolError(w, "request body exceeds 8 KiB")
		return
	}

	if s.secret != "" && !verifySignature(s.secret, body, r.Header.Get(signatureHeader)) {
		slog.Warn("Webhook signature rejected", "remote", r.RemoteAddr)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid webhook signature"})
		return
	}

	var ev paymentEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		writeProtocolError(w, "malformed JSON body")
		return
	}
	if ev.EventID == "" || ev.CaseID == "" {
		writeProtocolError(w, "event_id and case_id are required")
		return
	}
	if ev.Status != "completed" {
		// Only completions advance a case. Other event kinds are
		// acknowledged so the collaborator stops retrying them.
		writeJSON(w, http.StatusOK, map[string]any{"status": orchestrator.StatusSuccess, "ignored": true})
		return
	}

	fresh, err := s.events.Claim(r.Context(), ev.EventID)
	if err != nil {
		slog.Error("Webhook replay guard unavailable", "event_id", ev.EventID, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "replay guard unavailable"})
		return
	}
	if !fresh {
		slog.Info("Webhook event replayed", "event_id", ev.EventID, "case_id", ev.CaseID)
		observability.GetGlobalMetrics().RecordWebhookDuplicate(r.Context(), "payment")
		writeJSON(w, http.StatusOK, map[string]any{"status": orchestrator.StatusSuccess, "idempotent": true})
		return
	}

	// Webhooks carry no end-user token; the event acts on behalf of
	// whoever owns the case.
	c, _, _, err := s.store.Load(r.Context(), ev.CaseID)
	if err != nil {
		s.forget(r.Context(), ev.EventID)
		kind := fault.KindOf(err)
		slog.Error("Webhook case load failed", "case_id", ev.CaseID, "kind", string(kind), "error", err)
		writeJSON(w, fault.HTTPStatus(kind), map[string]string{"error": "case " + ev.CaseID + " not available"})
		return
	}

	resp := s.handler.Handle(r.Context(), orchestrator.Request{
		CaseID: ev.CaseID,
		Principal: orchestrator.Principal{
			UserID: c.Owner.ID,
			OrgIDs: []string{c.Owner.ID},
		},
		Event: orchestrator.Resume(orchestrator.ResumePaymentCompleted, map[string]any{
			"event_id": ev.EventID,
			"tier":     ev.Tier,
		}),
	})

	if resp.Status == orchestrator.StatusError || resp.Status == orchestrator.StatusBusy {
		s.forget(r.Context(), ev.EventID)
	}
	writeResponse(w, resp)
}

// forget releases an idempotency claim after a failed resume, detached from
// the request's cancellation.
func (s *Server) forget(ctx context.Context, eventID string) {
	if err := s.events.Forget(context.WithoutCancel(ctx), eventID); err != nil {
		slog.Warn("Replay guard release failed", "event_id", eventID, "error", err)
	}
}

// verifySignature checks the hex HMAC-SHA256 of body against the header
// value in constant time.
func verifySignature(secret string, body []byte, header string) bool {
	header = strings.TrimPrefix(header, "sha256=")
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(header))
}
