package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/seantiz/coinpulse/internal/model"
	"github.com/seantiz/coinpulse/internal/payment"
)

const maxBodySize = 1 << 20 // 1 MB

// validationResponse is the 400 body for rejected sponsorship requests.
type validationResponse struct {
	Message string               `json:"message"`
	Errors  []payment.FieldError `json:"errors"`
}

func (s *Server) handleCreateICOSponsorship(w http.ResponseWriter, r *http.Request) {
	var req model.ICOSponsorshipRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	resp, err := s.payments.CreateICOSponsorship(r.Context(), req)
	s.writeCheckout(w, resp, err, "Failed to create ICO sponsorship")
}

func (s *Server) handleCreateBannerSponsorship(w http.ResponseWriter, r *http.Request) {
	var req model.BannerSponsorshipRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	resp, err := s.payments.CreateBannerSponsorship(r.Context(), req)
	s.writeCheckout(w, resp, err, "Failed to create banner sponsorship")
}

// decodeBody reads a JSON request body into v, answering 400 on failure.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeJSON(w, http.StatusBadRequest, validationResponse{
			Message: "Invalid data",
			Errors:  []payment.FieldError{{Field: "body", Message: "must be a JSON object"}},
		})
		return false
	}
	return true
}

func (s *Server) writeCheckout(w http.ResponseWriter, resp *model.CheckoutResponse, err error, failure string) {
	var verr *payment.ValidationError
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, resp)
	case errors.As(err, &verr):
		s.writeJSON(w, http.StatusBadRequest, validationResponse{Message: "Invalid data", Errors: verr.Fields})
	default:
		s.logger.Error("create sponsorship checkout", "error", err)
		s.writeError(w, http.StatusInternalServerError, failure, err.Error())
	}
}
