package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/stackops/stackops/internal/infra/logger"
	"github.com/stackops/stackops/internal/ports"
)

// Server represents the HTTP server
type Server struct {
	addr          string
	intentHandler *IntentHandler
	server        *http.Server
	logger        logger.Logger
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	AllowedOrigin   string
	JWTSecret       string
	RequireAuth     bool
	DefaultApprover string
	HealthChecks    map[string]ports.HealthChecker
}

// NewServer creates a new HTTP server
func NewServer(config ServerConfig, intentUseCase IntentUseCase, log logger.Logger) *Server {
	intentHandler := NewIntentHandler(intentUseCase, config.DefaultApprover, log)

	return &Server{
		addr:          config.Addr,
		intentHandler: intentHandler,
		logger:        log,
		server: &http.Server{
			Addr:         config.Addr,
			Handler:      NewRouter(config, intentHandler, log),
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
	}
}

// NewRouter builds the route table with the middleware chain
func NewRouter(config ServerConfig, intentHandler *IntentHandler, log logger.Logger) *mux.Router {
	router := mux.NewRouter()

	intentHandler.RegisterRoutes(router)

	router.HandleFunc("/health", healthHandler(config.HealthChecks, log)).Methods("GET")

	// preflight requests need a matching route for the middleware chain to run
	router.PathPrefix("/").Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	router.Use(correlationMiddleware)
	router.Use(loggingMiddleware(log))
	router.Use(corsMiddleware(config.AllowedOrigin))
	router.Use(recoveryMiddleware(log))
	router.Use(NewAuthenticator(config.JWTSecret, config.RequireAuth).Middleware)

	return router
}

// Handler exposes the root handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "Starting HTTP server", map[string]interface{}{"addr": s.addr})
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "Shutting down HTTP server", nil)
	return s.server.Shutdown(ctx)
}

func corsMiddleware(allowedOrigin string) func(http.Handler) http.Handler {
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+CorrelationIDHeader)

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
