package api

import (
	"net/http"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/seantiz/coinpulse/internal/auth"
	"github.com/seantiz/coinpulse/internal/model"
)

const (
	adminRealm       = "coinpulse admin"
	defaultListLimit = 50
	maxListLimit     = 200
)

// totalCountHeader carries the unpaginated size of a list response.
const totalCountHeader = "X-Total-Count"

// sponsoredContentResponse is the JSON response for GET /api/admin/sponsored-content.
type sponsoredContentResponse struct {
	ICOs    []model.SponsoredICO `json:"icos"`
	Banners []model.BannerAd     `json:"banners"`
}

func (s *Server) adminAuth() func(http.Handler) http.Handler {
	return auth.BasicAuth(s.store, adminRealm, s.logger)
}

func (s *Server) handleAdminListPayments(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r, defaultListLimit, maxListLimit)

	payments, total, err := s.store.ListPayments(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list payments", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to fetch payments", "")
		return
	}
	if payments == nil {
		payments = []model.Payment{}
	}

	w.Header().Set(totalCountHeader, strconv.Itoa(total))
	s.writeJSON(w, http.StatusOK, payments)
}

func (s *Server) handleAdminSponsoredContent(w http.ResponseWriter, r *http.Request) {
	var resp sponsoredContentResponse
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		resp.ICOs, err = s.store.ListSponsoredICOs(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		resp.Banners, err = s.store.ListBannerAds(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.Error("list sponsored content", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to fetch sponsored content", "")
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetPaymentStats(r.Context())
	if err != nil {
		s.logger.Error("get payment stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to fetch stats", "")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}
