package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/seantiz/coinpulse/internal/coingecko"
	"github.com/seantiz/coinpulse/internal/model"
	"github.com/seantiz/coinpulse/internal/newsapi"
	"github.com/seantiz/coinpulse/internal/payment"
	"github.com/seantiz/coinpulse/internal/store"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second
)

// NewsSource serves live headlines.
type NewsSource interface {
	GetNews(ctx context.Context, q newsapi.Query) (*model.NewsPage, error)
}

// PriceSource serves market prices. It never fails; implementations fall
// back to static data.
type PriceSource interface {
	GetPrices(ctx context.Context, ids []string) coingecko.Prices
}

// WebhookVerifier authenticates webhook bodies.
type WebhookVerifier interface {
	VerifySignature(body []byte, header string) bool
}

// Options configures the HTTP listener.
type Options struct {
	Addr           string
	StaticDir      string
	RateLimitRPS   float64
	RateLimitBurst int
	// TrustProxy rewrites RemoteAddr from X-Forwarded-For / X-Real-IP so
	// logging and rate limiting see the real client.
	TrustProxy bool
}

// Deps are the services the handlers call into.
type Deps struct {
	Store    store.Store
	News     NewsSource
	Prices   PriceSource
	Payments *payment.Service
	Webhooks WebhookVerifier
	Logger   *slog.Logger
}

// Server wraps the chi router and application dependencies.
type Server struct {
	router   *chi.Mux
	store    store.Store
	news     NewsSource
	prices   PriceSource
	payments *payment.Service
	webhooks WebhookVerifier
	limiter  *rateLimiter
	logger   *slog.Logger
	opts     Options
}

// NewServer creates and configures a new HTTP server.
func NewServer(opts Options, deps Deps) *Server {
	srv := &Server{
		router:   chi.NewRouter(),
		store:    deps.Store,
		news:     deps.News,
		prices:   deps.Prices,
		payments: deps.Payments,
		webhooks: deps.Webhooks,
		limiter:  newRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst),
		logger:   deps.Logger,
		opts:     opts,
	}

	srv.router.Use(middleware.RequestID)
	if opts.TrustProxy {
		srv.router.Use(middleware.RealIP)
	}
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(srv.loggingMiddleware)
	srv.router.Use(metricsMiddleware)
	srv.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", totalCountHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	srv.routes()

	return srv
}

// routes registers all HTTP routes on the router.
func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", metricsHandler())

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/news", s.handleGetNews)
		r.Get("/news/archive", s.handleGetNewsArchive)
		r.Get("/sponsored-icos", s.handleListSponsoredICOs)
		r.Get("/banner-ads", s.handleListBannerAds)
		r.Get("/crypto-prices", s.handleGetCryptoPrices)

		r.With(s.limiter.Handler(s.writeError)).Route("/sponsorship", func(r chi.Router) {
			r.Post("/ico", s.handleCreateICOSponsorship)
			r.Post("/banner", s.handleCreateBannerSponsorship)
		})

		r.Get("/payments/{id}", s.handleGetPayment)
		r.Get("/payments/{id}/events", s.handleStreamPaymentEvents)

		r.Post("/webhooks/coinbase", s.handleCoinbaseWebhook)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.adminAuth())
			r.Get("/payments", s.handleAdminListPayments)
			r.Get("/sponsored-content", s.handleAdminSponsoredContent)
			r.Get("/stats", s.handleAdminStats)
		})

		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			s.writeError(w, http.StatusNotFound, "Not found", "")
		})
	})

	if s.opts.StaticDir != "" {
		s.router.NotFound(s.spaHandler(s.opts.StaticDir))
	}
}

// Router returns the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run starts the HTTP server and blocks until a shutdown signal is received.
func (s *Server) Run() error {
	httpServer := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.opts.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// loggingMiddleware logs each request using the structured logger.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
