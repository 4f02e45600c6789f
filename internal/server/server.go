package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/keygate/keygate/internal/handler"
	"github.com/keygate/keygate/internal/server/middleware"
	"github.com/keygate/keygate/internal/service"
	"github.com/keygate/keygate/internal/stats"
	"github.com/keygate/keygate/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host              string
	Port              int
	PublicBaseURL     string
	ShutdownTimeout   time.Duration
	CORSOrigins       []string
	RateLimitEnabled  bool
	RequestsPerMinute int
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:              "0.0.0.0",
		Port:              8080,
		PublicBaseURL:     "http://localhost:8080",
		ShutdownTimeout:   30 * time.Second,
		CORSOrigins:       []string{"*"},
		RateLimitEnabled:  true,
		RequestsPerMinute: 120,
	}
}

// Server is the top-level HTTP server for Keygate. It owns the Chi router,
// the storage handle, and the domain services.
type Server struct {
	cfg        Config
	router     chi.Router
	store      *store.Store
	authSvc    *service.AuthService
	validator  *service.Validator
	lifecycle  *service.Lifecycle
	collector  *stats.Collector
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, st *store.Store, authSvc *service.AuthService, logger *slog.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		store:     st,
		authSvc:   authSvc,
		validator: service.NewValidator(st, logger),
		lifecycle: service.NewLifecycle(st, logger, cfg.PublicBaseURL),
		collector: stats.NewCollector(st),
		logger:    logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Device-ID", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimw.Compress(5))

	// --- Health checks (no auth required) ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	// --- OpenAPI spec (no auth required) ---
	r.Get("/openapi.json", handler.NewOpenAPIHandler(s.cfg.PublicBaseURL).ServeSpec)

	// --- Public validation endpoints ---
	verifyHandler := handler.NewVerifyHandler(s.validator, s.collector)
	r.Group(func(r chi.Router) {
		if s.cfg.RateLimitEnabled {
			r.Use(middleware.RateLimit(s.cfg.RequestsPerMinute))
			r.Use(middleware.RateLimitByDevice(s.cfg.RequestsPerMinute))
		}
		r.Post("/api/verifyLogin", verifyHandler.VerifyLogin)
		r.Post("/api/verifyLoginWithInjector", verifyHandler.VerifyLoginWithInjector)
	})

	// --- Panel API routes ---
	sysHandler := handler.NewSystemHandler(s.store, s.authSvc, s.lifecycle, s.collector)
	keyHandler := handler.NewKeyHandler(s.store, s.lifecycle)
	injectorHandler := handler.NewInjectorHandler(s.store, s.lifecycle)
	resellerHandler := handler.NewResellerHandler(s.store, s.lifecycle)

	r.Route("/api/v1", func(r chi.Router) {

		r.Route("/system", func(r chi.Router) {
			// Session endpoints are unauthenticated (login) or
			// self-authenticated (logout).
			r.Post("/admin/session", sysHandler.AdminLogin)
			r.Post("/reseller/session", sysHandler.ResellerLogin)
			r.Delete("/session", sysHandler.Logout)

			// All other system endpoints require admin authentication.
			r.Group(func(r chi.Router) {
				r.Use(middleware.Authenticate(s.authSvc))
				r.Use(middleware.RequireAdmin())

				// Key management
				r.Get("/key", keyHandler.ListKeys)
				r.Post("/key", keyHandler.CreateKey)
				r.Get("/key/exists", keyHandler.KeyExists)
				r.Get("/key/{keyId}", keyHandler.GetKey)
				r.Delete("/key/{keyId}", keyHandler.DeleteKey)
				r.Get("/key/{keyId}/device", keyHandler.ListKeyDevices)
				r.Post("/key/{keyId}/block", keyHandler.BlockKey)
				r.Post("/key/{keyId}/unblock", keyHandler.UnblockKey)

				// Injector management
				r.Get("/injector", injectorHandler.ListInjectors)
				r.Post("/injector", injectorHandler.CreateInjector)
				r.Get("/injector/key-count", injectorHandler.KeyCounts)
				r.Get("/injector/{injectorId}", injectorHandler.GetInjector)
				r.Put("/injector/{injectorId}/redirect", injectorHandler.UpdateInjectorRedirect)
				r.Get("/injector/{injectorId}/login-url", injectorHandler.LoginURL)
				r.Delete("/injector/{injectorId}", injectorHandler.DeleteInjector)

				// Reseller management
				r.Get("/reseller", resellerHandler.ListResellers)
				r.Post("/reseller", resellerHandler.CreateReseller)
				r.Get("/reseller/{resellerId}", resellerHandler.GetReseller)
				r.Post("/reseller/{resellerId}/credits", resellerHandler.AdjustCredits)
				r.Get("/reseller/{resellerId}/key", resellerHandler.ListResellerKeys)
				r.Delete("/reseller/{resellerId}", resellerHandler.DeleteReseller)

				// Admin accounts, settings, stats
				r.Get("/admin", sysHandler.ListAdmins)
				r.Post("/admin", sysHandler.CreateAdmin)
				r.Put("/admin/account", sysHandler.UpdateAccount)
				r.Get("/settings", sysHandler.GetSettings)
				r.Put("/settings", sysHandler.UpdateSettings)
				r.Get("/credit-cost", sysHandler.GetCreditCost)
				r.Put("/credit-cost", sysHandler.UpdateCreditCost)
				r.Get("/stats", sysHandler.Stats)
			})
		})

		// Reseller self-service surface
		r.Route("/reseller", func(r chi.Router) {
			r.Use(middleware.Authenticate(s.authSvc))
			r.Use(middleware.RequireReseller())

			r.Get("/profile", resellerHandler.Profile)
			r.Get("/key", resellerHandler.ListOwnKeys)
			r.Post("/key", resellerHandler.CreateOwnKey)
			r.Delete("/key/{keyId}", resellerHandler.DeleteOwnKey)
			r.Get("/credit-cost", resellerHandler.CreditCost)
		})
	})

	s.router = r
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when storage is reachable,
// or 503 otherwise.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.store.Ping(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"degraded","checks":{"storage":"` + err.Error() + `"}}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok","checks":{"storage":"ok"}}`))
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests before closing the storage handle.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Listen for shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start server in background goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	if err := s.store.Close(); err != nil {
		s.logger.Warn("closing storage", "error", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
