package api

import (
	"io"
	"net/http"

	"github.com/seantiz/coinpulse/internal/coinbase"
)

func (s *Server) handleCoinbaseWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid webhook payload", "")
		return
	}

	if !s.webhooks.VerifySignature(body, r.Header.Get(coinbase.SignatureHeader)) {
		s.logger.Warn("webhook signature rejected", "remote_addr", r.RemoteAddr)
		s.writeError(w, http.StatusBadRequest, "Invalid webhook signature", "")
		return
	}

	ev, err := coinbase.ParseEvent(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid webhook payload", err.Error())
		return
	}

	if err := s.payments.HandleEvent(r.Context(), ev); err != nil {
		s.logger.Error("process webhook", "event_id", ev.ID, "type", ev.Type, "charge_id", ev.ChargeID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to process webhook", err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"message": "Webhook processed successfully"})
}
