package api

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/llmcli/streamchat/pkg/conversation"
	"github.com/llmcli/streamchat/pkg/logger"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Server is the mock chat backend.
type Server struct {
	config  Config
	store   conversation.Store
	scripts *ScriptSource
	logger  *slog.Logger
	app     *fiber.App
}

// NewServer creates a new API server.
// The store is injected to allow sharing with other components
// (e.g., the turn recorder when run from the serve command).
func NewServer(config Config, store conversation.Store, scripts *ScriptSource, l *slog.Logger) *Server {
	if l == nil {
		l = logger.Nop()
	}
	if scripts == nil {
		scripts = NewScriptSource(nil, l)
	}
	if config.AllowOrigins == "" {
		config.AllowOrigins = "*"
	}

	// Query and form values are stored by the conversation drivers, so they
	// must not alias fasthttp's reused request buffers.
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		Immutable:             true,
	})

	s := &Server{
		config:  config,
		store:   store,
		scripts: scripts,
		logger:  l,
		app:     app,
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins: config.AllowOrigins,
		AllowMethods: "GET,POST,PATCH,DELETE,OPTIONS",
	}))
	app.Use(s.requestLogger)

	app.Get("/api/health", s.handleHealth)
	app.Get("/api/tools", s.handleTools)

	app.Get("/api/chat/stream", s.handleChatStream)
	app.Post("/api/chat/stream", s.handleChatStream)

	app.Get("/api/conversations", s.handleListConversations)
	app.Post("/api/conversations", s.handleCreateConversation)
	app.Patch("/api/conversations", s.handleUpdateConversation)
	app.Delete("/api/conversations", s.handleDeleteConversation)
	app.Get("/api/conversations/messages", s.handleListMessages)
	app.Post("/api/conversations/messages", s.handleAppendMessage)

	return s
}

// App returns the underlying fiber app, e.g. for mounting in tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		"listen", s.config.ListenAddr,
		"script", s.scripts.Current().Name,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.logger.Debug("request",
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"duration", time.Since(start),
	)
	return err
}
