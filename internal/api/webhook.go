package api

import (
	"io"
	"net/http"

	"github.com/boardsync/boardsync/internal/webhook"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// handleWebhook receives GitHub webhook deliveries. Every delivery must
// carry a valid HMAC signature; unsigned traffic is rejected outright.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	signature := r.Header.Get("X-Hub-Signature-256")
	if !webhook.VerifySignature(s.webhookSecret, signature, body) {
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	event := r.Header.Get("X-GitHub-Event")
	if event == "ping" {
		writeJSON(w, http.StatusOK, map[string]string{"message": "pong"})
		return
	}

	payload, err := webhook.DecodePayload(r.Header.Get("Content-Type"), body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.normalizer.HandleEvent(r.Context(), event, payload); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
