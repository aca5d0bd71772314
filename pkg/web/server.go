// Package web exposes the voice conversation service over HTTP: audio
// turn submission, artifact retrieval, session management, and a
// websocket feed of turn lifecycle events.
package web

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/arguendo/arguendo/pkg/dialogue"
	"github.com/arguendo/arguendo/pkg/hub"
	"github.com/arguendo/arguendo/pkg/pipeline"
	"github.com/arguendo/arguendo/pkg/store"
)

// HealthChecker is the slice of a provider the health endpoint needs.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Options collects the server's collaborators.
type Options struct {
	Orchestrator *pipeline.Orchestrator
	Sessions     *dialogue.Manager
	Store        *store.Store

	// Checks maps capability names to their health probes.
	Checks map[string]HealthChecker

	Logger *slog.Logger
}

// Server is the HTTP front of the service.
type Server struct {
	app    *fiber.App
	addr   string
	logger *slog.Logger

	orch     *pipeline.Orchestrator
	sessions *dialogue.Manager
	store    *store.Store
	checks   map[string]HealthChecker

	turnHub *hub.Hub
}

// NewServer creates the server and registers all routes.
func NewServer(addr string, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "web")

	s := &Server{
		addr:     addr,
		logger:   logger,
		orch:     opts.Orchestrator,
		sessions: opts.Sessions,
		store:    opts.Store,
		checks:   opts.Checks,
		turnHub:  hub.New("turns", logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "arguendo",
		DisableStartupMessage: true,
		BodyLimit:             32 * 1024 * 1024,
	})

	app.Use(cors.New())

	app.Get("/healthz", s.handleHealth)

	api := app.Group("/api")
	api.Post("/turns", s.handleSubmitTurn)
	api.Get("/audio/:id", s.handleGetAudio)
	api.Get("/sessions/:id/history", s.handleGetHistory)
	api.Delete("/sessions/:id", s.handleDeleteSession)
	api.Get("/metrics", s.handleMetrics)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/turns", websocket.New(s.handleTurnsWS))

	s.app = app
	return s
}

// App returns the underlying fiber app, used by tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// TurnHub returns the hub carrying turn lifecycle events. Wire the
// orchestrator's notify callback to it.
func (s *Server) TurnHub() *hub.Hub {
	return s.turnHub
}

// Start runs the hub loop and serves HTTP. It blocks.
func (s *Server) Start() error {
	go s.turnHub.Run()
	s.logger.Info("listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// handleTurnsWS streams turn lifecycle events to an observer.
func (s *Server) handleTurnsWS(c *websocket.Conn) {
	client := hub.NewClient(s.turnHub, c)
	client.Run()
}
