package api

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"signalcraft-go/internal/config"
)

// Server represents the HTTP server with all configured routes and middleware.
type Server struct {
	app    *fiber.App
	config *config.ServerConfig
	logger *slog.Logger

	// Handlers
	ingestHandler *IngestHandler
	groupHandler  *GroupHandler
	ruleHandler   *RuleHandler
}

// ServerDeps contains all dependencies required to create a new Server.
type ServerDeps struct {
	Config        *config.ServerConfig
	Logger        *slog.Logger
	IngestHandler *IngestHandler
	GroupHandler  *GroupHandler
	RuleHandler   *RuleHandler
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(deps ServerDeps) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		StrictRouting:         true,
		CaseSensitive:         true,
		ReadTimeout:           deps.Config.ReadTimeout,
		WriteTimeout:          deps.Config.WriteTimeout,
		IdleTimeout:           deps.Config.IdleTimeout,
		ErrorHandler:          customErrorHandler,
	})

	s := &Server{
		app:           app,
		config:        deps.Config,
		logger:        deps.Logger,
		ingestHandler: deps.IngestHandler,
		groupHandler:  deps.GroupHandler,
		ruleHandler:   deps.RuleHandler,
	}

	s.registerMiddleware()
	s.registerRoutes()

	return s
}

// registerMiddleware sets up all middleware for the server.
func (s *Server) registerMiddleware() {
	// Recovery middleware to handle panics
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// Request ID middleware for tracing
	s.app.Use(requestid.New())

	// Logger middleware for request logging
	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} | ${path} | ${error}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
}

// registerRoutes sets up all API routes.
func (s *Server) registerRoutes() {
	// Health check endpoint (outside versioned API)
	s.app.Get("/healthz", s.healthCheck)

	// Prometheus metrics endpoint
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API v1 routes, all workspace-scoped
	ws := s.app.Group("/v1/workspaces/:workspaceID")

	// Webhook ingestion
	ws.Post("/ingest/:source", s.ingestHandler.Ingest)

	// Alert groups
	ws.Get("/alert-groups", s.groupHandler.List)
	ws.Get("/alert-groups/:id", s.groupHandler.GetByID)
	ws.Get("/alert-groups/:id/events", s.groupHandler.ListEvents)
	ws.Post("/alert-groups/:id/ack", s.groupHandler.Acknowledge)
	ws.Post("/alert-groups/:id/resolve", s.groupHandler.Resolve)
	ws.Post("/alert-groups/:id/snooze", s.groupHandler.Snooze)

	// Routing rules CRUD plus dry-run testing
	ws.Post("/routing-rules", s.ruleHandler.Create)
	ws.Get("/routing-rules", s.ruleHandler.List)
	ws.Post("/routing-rules/test", s.ruleHandler.Test)
	ws.Get("/routing-rules/:id", s.ruleHandler.GetByID)
	ws.Put("/routing-rules/:id", s.ruleHandler.Update)
	ws.Delete("/routing-rules/:id", s.ruleHandler.Delete)
}

// healthCheck returns the health status of the service.
func (s *Server) healthCheck(c *fiber.Ctx) error {
	return Success(c, map[string]string{
		"status": "healthy",
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	addr := s.config.Address()
	s.logger.Info("starting HTTP server", "address", addr)
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.app.ShutdownWithContext(ctx)
}

// customErrorHandler handles errors returned from handlers.
func customErrorHandler(c *fiber.Ctx, err error) error {
	if e, ok := err.(*fiber.Error); ok {
		return Error(c, e.Code, ErrCodeInternalError, e.Message)
	}

	return InternalError(c, fmt.Sprintf("unexpected error: %v", err))
}
