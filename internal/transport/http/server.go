package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/joshdurbin/shortlinks/internal/metrics"
	"github.com/joshdurbin/shortlinks/internal/service"
)

// Server represents the HTTP server
type Server struct {
	handler *Handler
	server  *http.Server
	port    string
	logger  *slog.Logger
}

// NewServer creates a new HTTP server
func NewServer(links service.LinkService, m *metrics.Metrics, port, baseURL string, verbose bool, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	handler := NewHandler(links, baseURL, logger)

	var finalHandler http.Handler = NewRouter(handler, m)

	// Logging sits inside the proxy handler so it sees the client address
	if verbose {
		finalHandler = NewLoggingMiddleware(logger).Middleware(finalHandler)
	}

	finalHandler = handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedHeaders([]string{"Content-Type", RequestIDHeader}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.ExposedHeaders([]string{RequestIDHeader}),
	)(finalHandler)
	finalHandler = handlers.ProxyHeaders(finalHandler)
	finalHandler = handlers.RecoveryHandler(
		handlers.RecoveryLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError)),
	)(finalHandler)

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      finalHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		handler: handler,
		server:  server,
		port:    port,
		logger:  logger,
	}
}

// NewRouter registers the API, redirect and operational routes
func NewRouter(handler *Handler, m *metrics.Metrics) *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(handler.NotFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(handler.MethodNotAllowed)

	// Operational endpoints live under a prefix no short code can take
	r.HandleFunc("/_/healthz", handler.Healthz).Methods(http.MethodGet)
	r.Handle("/_/metrics", m.Handler()).Methods(http.MethodGet)

	// API endpoints
	r.HandleFunc("/shorturls", handler.CreateLink).Methods(http.MethodPost)
	r.HandleFunc("/shorturls/{code}", handler.LinkStats).Methods(http.MethodGet)

	// Redirect endpoint
	r.HandleFunc("/{code}", handler.Redirect).Methods(http.MethodGet)

	return r
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("server starting", "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	return s.server.Shutdown(ctx)
}

// Port returns the server port
func (s *Server) Port() string {
	return s.port
}

// Handler returns the fully wrapped HTTP handler (useful for testing)
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
