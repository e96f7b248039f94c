package api

import (
	"net/http"

	"github.com/seantiz/coinpulse/internal/model"
	"github.com/seantiz/coinpulse/internal/newsapi"
	"github.com/seantiz/coinpulse/internal/store"
)

const (
	defaultArchiveLimit = 20
	maxArchiveLimit     = 100
)

// archiveResponse is the JSON response for GET /api/news/archive.
type archiveResponse struct {
	Articles []model.NewsArticle `json:"articles"`
	Total    int                 `json:"total"`
	Limit    int                 `json:"limit"`
	Offset   int                 `json:"offset"`
}

func (s *Server) handleGetNews(w http.ResponseWriter, r *http.Request) {
	q := newsapi.Query{
		Category: r.URL.Query().Get("category"),
		Page:     parseIntQuery(r, "page", 1),
		PageSize: parseIntQuery(r, "pageSize", newsapi.DefaultPageSize),
	}

	page, err := s.news.GetNews(r.Context(), q)
	if err == nil {
		s.writeJSON(w, http.StatusOK, page)
		return
	}
	s.logger.Error("fetch live news", "error", err)

	archived, ok := s.archivedPage(r, q)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "Failed to fetch news", err.Error())
		return
	}
	s.logger.Warn("serving archived news", "category", q.Category, "articles", len(archived.Articles))
	s.writeJSON(w, http.StatusOK, archived)
}

// archivedPage builds the requested page from stored articles. It reports
// false when the archive has nothing to offer.
func (s *Server) archivedPage(r *http.Request, q newsapi.Query) (*model.NewsPage, bool) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 || q.PageSize > newsapi.MaxPageSize {
		q.PageSize = newsapi.DefaultPageSize
	}

	articles, total, err := s.store.ListNewsArticles(r.Context(), store.NewsFilter{
		Category: q.Category,
		Limit:    q.PageSize,
		Offset:   (q.Page - 1) * q.PageSize,
	})
	if err != nil {
		s.logger.Error("list archived news", "error", err)
		return nil, false
	}
	if total == 0 {
		return nil, false
	}
	if articles == nil {
		articles = []model.NewsArticle{}
	}
	return &model.NewsPage{
		Articles:     articles,
		TotalResults: total,
		Page:         q.Page,
		PageSize:     q.PageSize,
		TotalPages:   newsapi.TotalPages(total, q.PageSize),
	}, true
}

func (s *Server) handleGetNewsArchive(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r, defaultArchiveLimit, maxArchiveLimit)

	articles, total, err := s.store.ListNewsArticles(r.Context(), store.NewsFilter{
		Category: r.URL.Query().Get("category"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		s.logger.Error("list archived news", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to fetch archived news", "")
		return
	}
	if articles == nil {
		articles = []model.NewsArticle{}
	}

	s.writeJSON(w, http.StatusOK, archiveResponse{
		Articles: articles,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	})
}
