package mgmt

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/reel-scout/internal/health"
	"github.com/p-blackswan/reel-scout/internal/metrics"
	"github.com/p-blackswan/reel-scout/internal/requestid"
)

// ServerConfig holds configuration for the management API server.
type ServerConfig struct {
	ListenAddr  string
	AuthConfig  AuthConfig
	RateLimit   RateLimitConfig
	CORSOrigins string
	TLSCert     string
	TLSKey      string
}

// Server is the management API Fiber application.
type Server struct {
	app     *fiber.App
	metrics *metrics.Metrics
	logger  zerolog.Logger
	config  ServerConfig
}

// NewServer creates and configures a new management API server. m may be
// nil, in which case /metrics is not served.
func NewServer(cfg ServerConfig, h *Handlers, checker *health.Checker, m *metrics.Metrics, logger zerolog.Logger) *Server {
	logger = logger.With().Str("component", "mgmt_server").Logger()
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler(logger),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ReadBufferSize:        8192,
		WriteBufferSize:       8192,
	})

	s := &Server{app: app, metrics: m, logger: logger, config: cfg}
	s.setupMiddleware(cfg)
	s.setupRoutes(h, checker)
	return s
}

func (s *Server) setupMiddleware(cfg ServerConfig) {
	s.app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	s.app.Use(requestid.Middleware())

	if cfg.CORSOrigins != "" {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CORSOrigins,
			AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
			AllowMethods: "GET, POST, PATCH, OPTIONS",
		}))
	}

	if cfg.RateLimit.RPS > 0 {
		s.app.Use(NewRateLimitMiddleware(cfg.RateLimit))
	}

	// Audit and request metrics. Registered before auth so rejected calls
	// are counted too.
	s.app.Use(func(c *fiber.Ctx) error {
		err := c.Next()
		path := c.Path()
		if isProbe(path) {
			return err
		}
		status := c.Response().StatusCode()
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}
		if s.metrics != nil {
			s.metrics.RecordRequest(c.Route().Path, strconv.Itoa(status))
		}
		s.logger.Info().
			Str("method", c.Method()).
			Str("path", path).
			Int("status", status).
			Str("ip", c.IP()).
			Str("request_id", requestid.FromFiber(c)).
			Msg("mgmt api request")
		return err
	})

	s.app.Use(NewAuthMiddleware(cfg.AuthConfig, s.logger))
}

func (s *Server) setupRoutes(h *Handlers, checker *health.Checker) {
	s.app.Get("/healthz", h.Liveness)
	s.app.Get("/readyz", h.Readiness)
	if s.metrics != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))
	}

	v1 := s.app.Group("/api/v1")

	v1.Get("/status", h.Status)
	v1.Get("/health", h.HealthDetail)

	// Session control
	op := requireRole(RoleOperator)
	v1.Post("/session/start", op, h.StartSession)
	v1.Post("/session/stop", op, h.StopSession)
	v1.Post("/session/pause", op, h.PauseSession)
	v1.Post("/session/resume", op, h.ResumeSession)
	v1.Post("/session/step", op, h.StepSession)

	// Items
	v1.Get("/items", h.ListItems)
	v1.Get("/items/:id", h.GetItem)
	v1.Get("/items/:id/analysis", h.ItemAnalysis)
	v1.Get("/items/:id/decisions", h.ItemDecisions)
	v1.Post("/items/:id/status", op, h.SetItemStatus)
	v1.Post("/items/:id/samples", op, h.AttachSample)

	// Settings
	v1.Get("/settings", h.GetSettings)
	v1.Patch("/settings", requireRole(RoleAdmin), h.PatchSettings)

	// Journal
	v1.Get("/history/steps", h.RecentSteps)
}

// Start starts the server. Blocks until stopped.
func (s *Server) Start() error {
	addr := s.config.ListenAddr
	if addr == "" {
		addr = ":8090"
	}

	s.logger.Info().Str("addr", addr).Bool("tls", s.config.TLSCert != "").Msg("Management API server starting")

	if s.config.TLSCert != "" && s.config.TLSKey != "" {
		return s.app.ListenTLS(addr, s.config.TLSCert, s.config.TLSKey)
	}
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("Management API server shutting down")
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

func customErrorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}

		detail := err.Error()
		if code == fiber.StatusInternalServerError {
			logger.Error().
				Err(err).
				Str("path", c.Path()).
				Str("method", c.Method()).
				Msg("Unhandled error")
			detail = "An internal error occurred"
		}

		return c.Status(code).JSON(ProblemDetail{
			Type:      "error",
			Title:     utils.StatusMessage(code),
			Status:    code,
			Detail:    detail,
			Instance:  c.Path(),
			RequestID: requestid.FromFiber(c),
		})
	}
}
