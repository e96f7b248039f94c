// Package newsapi fetches crypto headlines from newsapi.org.
package newsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/seantiz/coinpulse/internal/cache"
	"github.com/seantiz/coinpulse/internal/model"
	"github.com/seantiz/coinpulse/internal/upstream"
)

const (
	// DefaultBaseURL is the NewsAPI v2 endpoint.
	DefaultBaseURL = "https://newsapi.org/v2"

	DefaultPageSize = 20
	MaxPageSize     = 100

	baseQuery      = "cryptocurrency OR bitcoin OR ethereum OR blockchain OR crypto OR ICO OR DeFi OR NFT"
	requestTimeout = 10 * time.Second
)

// Query selects a page of headlines.
type Query struct {
	Category string
	Page     int
	PageSize int
}

// normalize fills defaults and clamps the page size to what NewsAPI accepts.
func (q Query) normalize() Query {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	return q
}

// Archiver persists fetched headlines so they can be served when NewsAPI is
// unavailable.
type Archiver interface {
	UpsertNewsArticle(ctx context.Context, a *model.NewsArticle) error
}

// Client calls the NewsAPI "everything" endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	cache      cache.Cache
	ttl        time.Duration
	archive    Archiver
	logger     *slog.Logger
}

// NewClient creates a NewsAPI client. A nil cache disables caching.
func NewClient(baseURL, apiKey string, c cache.Cache, ttl time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: requestTimeout},
		cache:      c,
		ttl:        ttl,
		logger:     logger,
	}
}

// WithArchive stores every freshly fetched article in a.
func (c *Client) WithArchive(a Archiver) *Client {
	c.archive = a
	return c
}

// Name identifies the upstream in logs and metrics.
func (c *Client) Name() string { return "newsapi" }

type everythingResponse struct {
	Status       string `json:"status"`
	Code         string `json:"code"`
	Message      string `json:"message"`
	TotalResults int    `json:"totalResults"`
	Articles     []struct {
		Source struct {
			ID   *string `json:"id"`
			Name string  `json:"name"`
		} `json:"source"`
		Author      *string   `json:"author"`
		Title       string    `json:"title"`
		Description *string   `json:"description"`
		URL         string    `json:"url"`
		URLToImage  *string   `json:"urlToImage"`
		PublishedAt time.Time `json:"publishedAt"`
		Content     *string   `json:"content"`
	} `json:"articles"`
}

// GetNews returns one page of categorized crypto headlines.
func (c *Client) GetNews(ctx context.Context, q Query) (*model.NewsPage, error) {
	q = q.normalize()
	key := fmt.Sprintf("news:%s:%d:%d", strings.ToLower(q.Category), q.Page, q.PageSize)

	if page, ok := c.cached(ctx, key); ok {
		return page, nil
	}

	page, err := c.fetch(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("fetch news: %w", err)
	}
	c.archiveArticles(ctx, page.Articles)

	if c.cache != nil {
		if b, err := json.Marshal(page); err == nil {
			if err := c.cache.Set(ctx, key, b, c.ttl); err != nil {
				c.logger.Warn("cache news page", "error", err)
			}
		}
	}
	return page, nil
}

func (c *Client) cached(ctx context.Context, key string) (*model.NewsPage, bool) {
	if c.cache == nil {
		return nil, false
	}
	b, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("read news cache", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var page model.NewsPage
	if err := json.Unmarshal(b, &page); err != nil {
		return nil, false
	}
	return &page, true
}

func (c *Client) fetch(ctx context.Context, q Query) (*model.NewsPage, error) {
	search := baseQuery
	if q.Category != "" && !strings.EqualFold(q.Category, "all") {
		search += " AND " + q.Category
	}

	params := url.Values{}
	params.Set("q", search)
	params.Set("language", "en")
	params.Set("sortBy", "publishedAt")
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("pageSize", strconv.Itoa(q.PageSize))
	params.Set("apiKey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/everything?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	upstream.Observe(c.Name(), start, resp, err)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	var body everythingResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if decodeErr == nil && body.Message != "" {
			return nil, fmt.Errorf("news api error: %s: %s", resp.Status, body.Message)
		}
		return nil, fmt.Errorf("news api error: %s", resp.Status)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode response: %w", decodeErr)
	}
	if body.Status != "ok" {
		return nil, fmt.Errorf("news api returned error status: %s", body.Status)
	}

	articles := make([]model.NewsArticle, 0, len(body.Articles))
	for _, a := range body.Articles {
		desc := deref(a.Description)
		articles = append(articles, model.NewsArticle{
			Title:       a.Title,
			Description: desc,
			Content:     deref(a.Content),
			URL:         a.URL,
			ImageURL:    a.URLToImage,
			PublishedAt: a.PublishedAt,
			Source:      a.Source.Name,
			Author:      a.Author,
			Category:    Categorize(a.Title + " " + desc),
		})
	}

	return &model.NewsPage{
		Articles:     articles,
		TotalResults: body.TotalResults,
		Page:         q.Page,
		PageSize:     q.PageSize,
		TotalPages:   TotalPages(body.TotalResults, q.PageSize),
	}, nil
}

func (c *Client) archiveArticles(ctx context.Context, articles []model.NewsArticle) {
	if c.archive == nil {
		return
	}
	for _, a := range articles {
		if err := c.archive.UpsertNewsArticle(ctx, &a); err != nil {
			c.logger.Warn("archive news article", "url", a.URL, "error", err)
		}
	}
}

// TotalPages is the number of pages needed to show total results.
func TotalPages(total, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
