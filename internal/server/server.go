package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/raikyaku/internal/auth"
	"github.com/ashita-ai/raikyaku/internal/collector"
	"github.com/ashita-ai/raikyaku/internal/consent"
	"github.com/ashita-ai/raikyaku/internal/ratelimit"
	"github.com/ashita-ai/raikyaku/internal/sink"
	"github.com/ashita-ai/raikyaku/internal/store"
)

// Server is the raikyaku HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a
// Server. Optional fields (nil-safe): Limiter, Dispatcher, MCPServer.
type ServerConfig struct {
	// Required dependencies.
	Gate      *consent.Gate
	Store     *store.Store
	Collector *collector.Collector
	JWTMgr    *auth.JWTManager
	Logger    *slog.Logger

	// OperatorKeyHash is the argon2id hash of the operator key accepted
	// by POST /auth/token.
	OperatorKeyHash string

	// Optional dependencies (nil = disabled).
	Dispatcher *sink.Dispatcher
	Limiter    ratelimit.Limiter
	MCPServer  *mcpserver.MCPServer

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64

	// SinkName is reported by the health endpoint.
	SinkName string
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		Gate:                cfg.Gate,
		Store:               cfg.Store,
		Collector:           cfg.Collector,
		Dispatcher:          cfg.Dispatcher,
		JWTMgr:              cfg.JWTMgr,
		OperatorKeyHash:     cfg.OperatorKeyHash,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		SinkName:            cfg.SinkName,
	})

	// Request ID extractor for rate limit error responses.
	reqIDFunc := func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	}

	// Capture and auth endpoints are public, so rate limiting keys on the
	// peer address.
	ipRL := ratelimit.Middleware(cfg.Limiter, ratelimit.IPKeyFunc, reqIDFunc)

	mux := http.NewServeMux()

	// Auth endpoint (no auth required, rate limited by IP).
	mux.Handle("POST /auth/token", ipRL(http.HandlerFunc(h.HandleAuthToken)))

	// Consent gate (public; the visitor decides, not the operator).
	mux.HandleFunc("GET /v1/consent", h.HandleConsentState)
	mux.Handle("POST /v1/consent", ipRL(http.HandlerFunc(h.HandleConsentDecide)))

	// Capture (public, rate limited by IP).
	mux.Handle("POST /v1/visits", ipRL(http.HandlerFunc(h.HandleCapture)))

	// Log inspection and export (operator-only).
	operator := requireOperator
	mux.Handle("GET /v1/visits", operator(http.HandlerFunc(h.HandleListVisits)))
	mux.Handle("DELETE /v1/visits", operator(http.HandlerFunc(h.HandleClearVisits)))
	mux.Handle("GET /v1/export/text", operator(http.HandlerFunc(h.HandleExportText)))
	mux.Handle("GET /v1/export/json", operator(http.HandlerFunc(h.HandleExportJSON)))

	// MCP StreamableHTTP transport (operator-only).
	if cfg.MCPServer != nil {
		mcpHTTP := mcpserver.NewStreamableHTTPServer(cfg.MCPServer)
		mux.Handle("/mcp", operator(mcpHTTP))
	}

	// Health (no auth, no rate limit).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
