package api

import (
	"net/http"
	"strings"
	"time"
)

func (s *Server) handleListSponsoredICOs(w http.ResponseWriter, r *http.Request) {
	icos, err := s.store.ListActiveSponsoredICOs(r.Context(), time.Now())
	if err != nil {
		s.logger.Error("list active sponsored icos", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to fetch sponsored ICOs", "")
		return
	}
	s.writeJSON(w, http.StatusOK, icos)
}

func (s *Server) handleListBannerAds(w http.ResponseWriter, r *http.Request) {
	banners, err := s.store.ListActiveBannerAds(r.Context(), time.Now())
	if err != nil {
		s.logger.Error("list active banner ads", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to fetch banner ads", "")
		return
	}
	s.writeJSON(w, http.StatusOK, banners)
}

func (s *Server) handleGetCryptoPrices(w http.ResponseWriter, r *http.Request) {
	var ids []string
	if v := r.URL.Query().Get("ids"); v != "" {
		ids = strings.Split(v, ",")
	}
	s.writeJSON(w, http.StatusOK, s.prices.GetPrices(r.Context(), ids))
}
