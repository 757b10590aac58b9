package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/causahq/causa/pkg/auth"
	"github.com/causahq/causa/pkg/orchestrator"
)

// maxBodyBytes caps inbound request bodies. Agent messages are short; long
// documents travel as attachments, not message text.
const maxBodyBytes = 8 << 10

type messageRequest struct {
	Message string `json:"message"`
}

// handleAgentMessage feeds one user message into the orchestrator. The
// response envelope and status code come straight from the handler.
func (s *Server) handleAgentMessage(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "case_id")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeProtocolError(w, "request body exceeds 8 KiB")
		return
	}

	var req messageRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeProtocolError(w, "malformed JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeProtocolError(w, "message is required")
		return
	}

	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		// The identity middleware guards this route; a nil here means the
		// route tree is miswired.
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "request has no identity"})
		return
	}

	resp := s.handler.Handle(r.Context(), orchestrator.Request{
		CaseID: caseID,
		Principal: orchestrator.Principal{
			UserID: claims.Subject,
			OrgIDs: claims.OrgIDs,
		},
		Event: orchestrator.UserMessage(req.Message),
	})
	writeResponse(w, resp)
}

// writeResponse sends an orchestrator response with its advised status code.
func writeResponse(w http.ResponseWriter, resp orchestrator.Response) {
	status := resp.HTTPStatus
	if status == 0 {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

// writeProtocolError reports a malformed request in the same envelope the
// orchestrator uses, so clients parse one shape.
func writeProtocolError(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, orchestrator.Response{
		Status:    orchestrator.StatusError,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Response encoding failed", "error", err)
	}
}
