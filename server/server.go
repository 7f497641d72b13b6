package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/mrsingh-rishi/voice-bot/call"
	"github.com/mrsingh-rishi/voice-bot/config"
	"github.com/mrsingh-rishi/voice-bot/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twilio/twilio-go/client"
)

// Server is the HTTP side of the bot: call setup, the media websocket,
// outbound calls, health and metrics.
type Server struct {
	App *fiber.App

	config    *config.Config
	registry  *call.Registry
	deps      call.Dependencies
	caller    CallPlacer
	validator *client.RequestValidator
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func New(
	cfg *config.Config,
	registry *call.Registry,
	deps call.Dependencies,
	caller CallPlacer,
	gatherer prometheus.Gatherer,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Server {
	s := &Server{
		App:      fiber.New(fiber.Config{DisableStartupMessage: true}),
		config:   cfg,
		registry: registry,
		deps:     deps,
		caller:   caller,
		logger:   logger,
		metrics:  m,
	}
	if cfg.Twilio.ValidateSignature {
		validator := client.NewRequestValidator(cfg.Twilio.AuthToken)
		s.validator = &validator
	}

	s.App.Use(recover.New())

	// POST /call kicks off an outbound call that points Twilio at /twiml
	s.App.Post("/call", s.handleCall)

	s.App.Get("/twiml", s.handleTwiML)
	s.App.Post("/twiml", s.handleTwiML)

	// Require a WebSocket upgrade on /stream
	s.App.Use("/stream", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.App.Get("/stream", websocket.New(s.handleStream))

	s.App.Get("/healthz", s.handleHealth)
	s.App.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return s
}

func (s *Server) Listen() error {
	addr := fmt.Sprintf(":%d", s.config.Server.Port)
	s.logger.Info("Fiber server listening", "addr", addr)
	return s.App.Listen(addr)
}

// Shutdown ends every active call and stops accepting new ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.registry.CloseAll()
	return s.App.ShutdownWithContext(ctx)
}
