// Package web provides the HTTP server and handlers for the transaction
// import UI and its JSON API.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/JonMunkholm/banko/internal/config"
	"github.com/JonMunkholm/banko/internal/core"
	"github.com/JonMunkholm/banko/internal/metrics"
	webmw "github.com/JonMunkholm/banko/internal/web/middleware"
)

//go:embed static
var staticFiles embed.FS

// Server is the HTTP server for the import gateway.
type Server struct {
	cfg      *config.Config
	registry *core.Registry
	limiter  *core.ImportLimiter
	metrics  *metrics.Metrics

	router      *chi.Mux
	server      *http.Server
	rateLimiter *rateLimiter
}

// NewServer creates a Server. limiter and m may be nil.
func NewServer(cfg *config.Config, registry *core.Registry, limiter *core.ImportLimiter, m *metrics.Metrics) *Server {
	s := &Server{
		cfg:      cfg,
		registry: registry,
		limiter:  limiter,
		metrics:  m,
		router:   chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(webmw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(webmw.Logger)
	s.router.Use(middleware.Recoverer)
	if s.metrics != nil {
		s.router.Use(s.metrics.Middleware)
	}
	s.router.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))

	if s.cfg.Rate.Enabled {
		s.rateLimiter = newRateLimiter(s.cfg.Rate.RequestsPerMinute, s.cfg.Rate.ImportLimit)
		s.router.Use(s.rateLimiter.middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	s.router.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))

	s.router.Get("/healthz", s.handleHealth)
	if s.metrics != nil && s.cfg.Metrics.Enabled {
		s.router.Handle(s.cfg.Metrics.Path, s.metrics.Handler())
	}

	// Pages
	s.router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/imports", http.StatusFound)
	})
	s.router.Route("/imports", func(r chi.Router) {
		r.Use(s.withWorkflow)
		r.Get("/", s.handleImportPage)
		r.Post("/file", s.handleSelectFileForm)
		r.Post("/mapping", s.handleToggleForm)
		r.Post("/submit", s.handleSubmitForm)
		r.Post("/retry", s.handleRetryForm)
		r.Post("/reset", s.handleResetForm)
	})

	// API routes
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.Security.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Content-Type", "X-API-Key", "X-Request-Id", sessionHeader},
		ExposedHeaders:   []string{sessionHeader},
		AllowCredentials: true,
		MaxAge:           300,
	})
	s.router.Route("/api/import", func(r chi.Router) {
		r.Use(corsHandler.Handler)
		r.Use(webmw.APIKeyAuth(&s.cfg.Security))
		r.Use(s.withWorkflow)

		r.Get("/", s.handleGetSession)
		r.Post("/file", s.handleSelectFile)
		r.Post("/mapping", s.handleToggleMapping)
		r.Post("/submit", s.handleSubmit)
		r.Post("/retry", s.handleRetry)
		r.Post("/reset", s.handleReset)
		r.Get("/history", s.handleHistory)
		r.Get("/history.csv", s.handleHistoryCSV)
	})
}

// Start begins listening for HTTP requests. After Shutdown it returns
// http.ErrServerClosed.
func (s *Server) Start() error {
	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.rateLimiter != nil {
		s.rateLimiter.stop()
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

type healthResponse struct {
	Status   string                    `json:"status"`
	Sessions int                       `json:"sessions"`
	Imports  *core.ImportLimiterStatus `json:"imports,omitempty"`
	Time     time.Time                 `json:"time"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:   "ok",
		Sessions: s.registry.Len(),
		Time:     time.Now().UTC(),
	}
	if s.limiter != nil {
		st := s.limiter.Status()
		resp.Imports = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

// securityHeaders adds security headers to all responses.
func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if enableCSP {
				w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self'; img-src 'self' data:; form-action 'self'; frame-ancestors 'none'")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeJSON encodes v as JSON with the given status.
// Encoding errors are only logged since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
