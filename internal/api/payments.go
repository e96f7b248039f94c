package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/coinpulse/internal/model"
	"github.com/seantiz/coinpulse/internal/payment"
)

// heartbeatInterval keeps idle event streams open through proxies.
const heartbeatInterval = 25 * time.Second

// paymentView is the public projection of a payment. The stored request and
// charge identifiers stay private.
type paymentView struct {
	ID              string     `json:"id"`
	Status          string     `json:"status"`
	SponsorshipType string     `json:"sponsorshipType"`
	Amount          string     `json:"amount"`
	Currency        string     `json:"currency"`
	HostedURL       string     `json:"hostedUrl,omitempty"`
	SponsorshipID   *string    `json:"sponsorshipId"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

func newPaymentView(p *model.Payment) paymentView {
	return paymentView{
		ID:              p.ID,
		Status:          p.Status,
		SponsorshipType: p.SponsorshipType,
		Amount:          p.Amount,
		Currency:        p.Currency,
		HostedURL:       p.HostedURL,
		SponsorshipID:   p.SponsorshipID,
		ExpiresAt:       p.ExpiresAt,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func (s *Server) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	p, err := s.payments.GetPayment(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, payment.ErrPaymentNotFound) {
		s.writeError(w, http.StatusNotFound, "Payment not found", "")
		return
	}
	if err != nil {
		s.logger.Error("get payment", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to fetch payment", "")
		return
	}
	s.writeJSON(w, http.StatusOK, newPaymentView(p))
}

// handleStreamPaymentEvents streams status changes as server-sent events.
// The current status is sent first; the stream ends with a done event once
// the payment is completed.
func (s *Server) handleStreamPaymentEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, err := s.payments.GetPayment(r.Context(), id)
	if errors.Is(err, payment.ErrPaymentNotFound) {
		s.writeError(w, http.StatusNotFound, "Payment not found", "")
		return
	}
	if err != nil {
		s.logger.Error("get payment for events", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to fetch payment", "")
		return
	}

	w.Header().Set("Content-Type", eventStreamType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, canFlush := w.(http.Flusher)
	flush := func() {
		if canFlush {
			flusher.Flush()
		}
	}

	if model.IsTerminal(p.Status) {
		w.WriteHeader(http.StatusOK)
		_ = writeSSEEvent(w, "status", p.Status)
		_ = writeSSEEvent(w, "done", p.Status)
		flush()
		return
	}

	// Disable write timeout for long-lived SSE connections.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug("set write deadline for SSE", "error", err)
	}

	defer trackEventStream()()

	// Subscribe before re-reading the status. A completion committed before
	// the subscription shows up in the re-read; a later one closes ch.
	ch, unsub := s.payments.Broker().Subscribe(id)
	defer unsub()

	last := p.Status
	if cur, err := s.payments.GetPayment(r.Context(), id); err == nil {
		last = cur.Status
	}

	w.WriteHeader(http.StatusOK)
	if err := writeSSEEvent(w, "status", last); err != nil {
		return
	}
	if model.IsTerminal(last) {
		_ = writeSSEEvent(w, "done", last)
		flush()
		return
	}
	flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case status, ok := <-ch:
			if !ok {
				_ = writeSSEEvent(w, "done", model.StatusCompleted)
				flush()
				return
			}
			if status == last {
				continue
			}
			last = status
			if err := writeSSEEvent(w, "status", status); err != nil {
				return
			}
			flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flush()
		case <-r.Context().Done():
			return
		}
	}
}

// writeSSEEvent writes a named SSE event (event: <type>\ndata: <data>\n\n).
func writeSSEEvent(w http.ResponseWriter, eventType, data string) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return nil
}
