package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"walletd/internal/cache"
	"walletd/internal/db"
	"walletd/internal/handler"
	"walletd/internal/ledger"
	"walletd/internal/metrics"
	"walletd/internal/repository"
)

// Server represents the HTTP server.
type Server struct {
	httpServer  *http.Server
	logger      *zap.Logger
	database    *db.DB
	cacheClient *cache.Client
	rateLimit   int
}

// Config holds server configuration.
type Config struct {
	Port               int
	Database           *db.DB
	CacheClient        *cache.Client
	Logger             *zap.Logger
	Metrics            *metrics.Metrics
	SnapshotTTL        time.Duration
	RateLimitPerMinute int
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	s := &Server{
		logger:      cfg.Logger,
		database:    cfg.Database,
		cacheClient: cfg.CacheClient,
		rateLimit:   cfg.RateLimitPerMinute,
	}

	// Wire the engine on the PostgreSQL-backed store
	store := repository.NewStore(cfg.Database)
	engine := ledger.NewEngine(store, cfg.Metrics)

	// Create handlers
	walletHandler := handler.NewWalletHandler(engine, cfg.CacheClient, cfg.SnapshotTTL)
	transferHandler := handler.NewTransferHandler(engine, cfg.CacheClient)

	// Setup chi router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.zapLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(s.rateLimiter)

	// Health check endpoints
	r.Get("/health", s.healthCheck)
	r.Get("/ready", s.readyCheck)
	r.Handle("/metrics", promhttp.Handler())

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Wallets
		r.Post("/wallets", walletHandler.Create)
		r.Get("/wallets/{id}", walletHandler.Get)
		r.Put("/wallets/{id}", walletHandler.Update)
		r.Post("/wallets/{id}", walletHandler.Operate)
		r.Get("/wallets/{id}/ledger", walletHandler.Ledger)

		// Transfers
		r.Post("/transfers", transferHandler.Create)
	})

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// healthCheck returns basic health status.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// readyCheck returns readiness status (all dependencies available).
func (s *Server) readyCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Check PostgreSQL
	if err := s.database.Ping(ctx); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"not ready","reason":"database unavailable"}`))
		return
	}

	// Check Redis
	if s.cacheClient != nil {
		if err := s.cacheClient.Ping(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"not ready","reason":"cache unavailable"}`))
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

// zapLogger is a middleware that logs requests using zap.
func (s *Server) zapLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// rateLimiter throttles callers per client IP using the Redis sliding
// window. Disabled when no cache client or limit is configured.
func (s *Server) rateLimiter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cacheClient == nil || s.rateLimit <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		allowed, err := s.cacheClient.CheckRateLimit(r.Context(), r.RemoteAddr, s.rateLimit)
		if err != nil {
			// Redis trouble must not take the ledger down with it.
			s.logger.Warn("rate limit check failed", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			handler.TooManyRequests(w, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
