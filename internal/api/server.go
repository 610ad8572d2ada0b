// Package api provides the HTTP and websocket surface of scanhub: scan
// session endpoints, schedule CRUD, the realtime progress channel, health
// probes and Prometheus metrics.
package api

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/scanhub/scanhub/internal/broadcast"
	"github.com/scanhub/scanhub/internal/config"
	"github.com/scanhub/scanhub/internal/db"
	"github.com/scanhub/scanhub/internal/logging"
	"github.com/scanhub/scanhub/internal/metrics"
	"github.com/scanhub/scanhub/internal/scanning"
	"github.com/scanhub/scanhub/internal/scheduler"
)

const serverShutdownTimeout = 30 * time.Second

// Server is the API server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	cfg        config.APIConfig

	manager  *scanning.Manager
	store    scheduler.Store
	engine   *scheduler.Engine
	hub      *broadcast.Hub
	database *db.DB

	metrics   *metrics.Metrics
	logger    *logging.Logger
	validate  *validator.Validate
	startTime time.Time
}

// New creates an API server wired to the given components. database may be
// nil when running without Postgres.
func New(
	cfg config.APIConfig,
	manager *scanning.Manager,
	store scheduler.Store,
	engine *scheduler.Engine,
	hub *broadcast.Hub,
	database *db.DB,
	m *metrics.Metrics,
	logger *logging.Logger,
) *Server {
	if m == nil {
		m = metrics.Global()
	}
	if logger == nil {
		logger = logging.Default()
	}

	s := &Server{
		router:    mux.NewRouter(),
		cfg:       cfg,
		manager:   manager,
		store:     store,
		engine:    engine,
		hub:       hub,
		database:  database,
		metrics:   m,
		logger:    logger.WithComponent("api"),
		validate:  validator.New(),
		startTime: time.Now(),
	}

	s.setupRoutes()
	s.setupMiddleware()

	s.httpServer = &http.Server{
		Addr:           net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:        s.router,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/scan", s.handleStartScan).Methods("POST")
	s.router.HandleFunc("/scan", s.handleListScans).Methods("GET")
	s.router.HandleFunc("/scan/{id}", s.handleGetScan).Methods("GET")
	s.router.HandleFunc("/scan/{id}/cancel", s.handleCancelScan).Methods("POST")

	s.router.HandleFunc("/schedule/api", s.handleListSchedules).Methods("GET")
	s.router.HandleFunc("/schedule/submit", s.handleSubmitSchedule).Methods("POST")
	s.router.HandleFunc("/schedule/{id}/update", s.handleUpdateSchedule).Methods("POST")
	s.router.HandleFunc("/schedule/{id}/cancel", s.handleCancelSchedule).Methods("POST")
	s.router.HandleFunc("/schedule/{id}/run", s.handleRunSchedule).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket).Methods("GET")

	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/livez", s.handleLiveness).Methods("GET")
	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
}

func (s *Server) setupMiddleware() {
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.loggingMiddleware)

	if s.cfg.EnableCORS {
		s.router.Use(handlers.CORS(
			handlers.AllowedOrigins(s.cfg.CORSOrigins),
			handlers.AllowedHeaders([]string{"Content-Type"}),
			handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		))
	}

	s.router.Use(s.contentTypeMiddleware)
}

// Start runs the server until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting API server", "address", s.httpServer.Addr)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("API server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errChan:
		return err
	}
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	s.logger.Info("stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// Router returns the configured router, mainly for tests.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Address returns the listen address.
func (s *Server) Address() string {
	return s.httpServer.Addr
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic in handler",
					"error", err, "path", r.URL.Path, "method", r.Method)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration", duration,
			"remote_addr", r.RemoteAddr)

		s.metrics.HTTPRequest(r.Method, r.URL.Path, strconv.Itoa(wrapped.statusCode), duration)
	})
}

func (s *Server) contentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			contentType := r.Header.Get("Content-Type")
			if contentType != "" && contentType != "application/json" {
				http.Error(w, "unsupported content type: "+contentType,
					http.StatusUnsupportedMediaType)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// responseWriter captures the status code for request logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrade reach the underlying connection.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}
