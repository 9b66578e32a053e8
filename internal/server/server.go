// Package server assembles the fiber application and the per-route middleware chain.
package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/utils"
	"go.uber.org/zap"

	"poplift/internal/auth"
	"poplift/internal/config"
	"poplift/internal/database"
	"poplift/internal/middleware"
	"poplift/internal/pkg/ratelimit"
	"poplift/internal/pkg/respond"
)

// Config configures the server. Its dependencies are injected into each
// request's Context.
type Config struct {
	Config    *config.Config
	Logger    *zap.Logger
	DBManager *database.Manager
	Limiter   ratelimit.Checker
	Verifier  auth.Verifier
	Clock     func() time.Time

	ErrorHandler fiber.ErrorHandler

	EnableRequestLogger bool
	EnableRequestID     bool
	EnableRecover       bool
	EnableHelmet        bool
	EnableCompress      bool
	RequestTimeout      time.Duration

	MaxConcurrentWrites int
	ConcurrencyTimeout  time.Duration
}

// DefaultConfig returns sensible defaults for the server configuration.
func DefaultConfig() *Config {
	return &Config{
		EnableRequestLogger: true,
		EnableRequestID:     true,
		EnableRecover:       true,
		EnableHelmet:        true,
		EnableCompress:      true,
		RequestTimeout:      15 * time.Second,
		MaxConcurrentWrites: 8,
		ConcurrencyTimeout:  5 * time.Second,
	}
}

// RouteConfig customises middleware for a route.
type RouteConfig struct {
	// Policy names the rate-limit budget and failure mode of the route.
	Policy *respond.Policy
	// EnableCORS adds the permissive CORS headers and an OPTIONS handler.
	EnableCORS       bool
	WriteConcurrency bool
	// CustomMiddleware runs after CORS and before the rate limiter.
	CustomMiddleware []fiber.Handler
}

// Server wraps a fiber.App with the application's middleware chain.
type Server struct {
	app       *fiber.App
	cfg       *Config
	writes    *middleware.ConcurrencyLimiter
	corsPaths map[string]bool
}

// NewServer creates a server using the provided configuration.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("server: config is required")
	}
	if cfg.Config == nil {
		return nil, fmt.Errorf("server: runtime config is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("server: logger is required")
	}
	if cfg.DBManager == nil {
		return nil, fmt.Errorf("server: database manager is required")
	}
	if cfg.Limiter == nil {
		return nil, fmt.Errorf("server: rate limiter is required")
	}
	if cfg.Verifier == nil {
		return nil, fmt.Errorf("server: token verifier is required")
	}

	fiberCfg := fiber.Config{
		AppName:               cfg.Config.AppName,
		DisableDefaultDate:    true,
		DisableStartupMessage: true,
		ReadTimeout:           cfg.RequestTimeout,
		WriteTimeout:          cfg.RequestTimeout,
		BodyLimit:             64 * 1024,
	}
	if cfg.ErrorHandler != nil {
		fiberCfg.ErrorHandler = cfg.ErrorHandler
	} else {
		fiberCfg.ErrorHandler = ErrorHandler(cfg.Logger)
	}

	s := &Server{
		app:       fiber.New(fiberCfg),
		cfg:       cfg,
		writes:    middleware.NewConcurrencyLimiter(int64(cfg.MaxConcurrentWrites), cfg.ConcurrencyTimeout, cfg.Logger),
		corsPaths: make(map[string]bool),
	}
	s.setupGlobalMiddleware()
	s.app.Get("/_health", health)
	s.app.Head("/_health", health)

	return s, nil
}

func health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) setupGlobalMiddleware() {
	if s.cfg.EnableRequestID {
		s.app.Use(requestid.New())
	}

	if s.cfg.EnableRecover {
		s.app.Use(fiberrecover.New(fiberrecover.Config{EnableStackTrace: s.cfg.Config.IsDevelopment()}))
	}

	if s.cfg.EnableHelmet {
		s.app.Use(helmet.New(helmet.Config{
			// Public endpoints are loaded from customer origins.
			CrossOriginResourcePolicy: "cross-origin",
			CrossOriginEmbedderPolicy: "unsafe-none",
			ContentSecurityPolicy:     "",
		}))
	}

	if s.cfg.EnableCompress {
		s.app.Use(compress.New(compress.Config{
			Level: compress.LevelDefault,
		}))
	}

	if s.cfg.EnableRequestLogger {
		s.app.Use(middleware.RequestLogger(s.cfg.Logger))
	}
}

// Get registers a GET route.
func (s *Server) Get(path string, handler func(*Context) error, cfg ...*RouteConfig) {
	s.registerRoute(fiber.MethodGet, path, s.wrapHandler(handler), cfg...)
}

// Post registers a POST route.
func (s *Server) Post(path string, handler func(*Context) error, cfg ...*RouteConfig) {
	s.registerRoute(fiber.MethodPost, path, s.wrapHandler(handler), cfg...)
}

// RequireAuth rejects requests without a valid bearer token.
func (s *Server) RequireAuth() fiber.Handler {
	return middleware.Authenticate(s.cfg.Verifier, true, s.cfg.Logger)
}

// OptionalAuth authenticates a bearer token when one is present.
func (s *Server) OptionalAuth() fiber.Handler {
	return middleware.Authenticate(s.cfg.Verifier, false, s.cfg.Logger)
}

func (s *Server) newContext(c *fiber.Ctx) *Context {
	return &Context{
		Ctx:       c,
		Logger:    s.cfg.Logger,
		Config:    s.cfg.Config,
		DBManager: s.cfg.DBManager,
		clock:     s.cfg.Clock,
	}
}

func (s *Server) wrapHandler(handler func(*Context) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, ok := c.Locals(contextKey).(*Context)
		if !ok {
			ctx = s.newContext(c)
		}
		return handler(ctx)
	}
}

// registerRoute assembles, in order: context and policy injection, CORS,
// route middleware (authentication, ownership), rate limiting, write
// concurrency, handler. Route middleware charges the budget itself when it
// rejects bad credentials or input; an ownership mismatch is answered 403
// without touching it.
func (s *Server) registerRoute(method, path string, handler fiber.Handler, cfg ...*RouteConfig) {
	routeCfg := &RouteConfig{}
	if len(cfg) > 0 && cfg[0] != nil {
		routeCfg = cfg[0]
	}

	injector := func(c *fiber.Ctx) error {
		c.Locals(contextKey, s.newContext(c))
		if routeCfg.Policy != nil {
			respond.Attach(c, routeCfg.Policy)
		}
		if routeCfg.Policy.Limited() {
			middleware.AttachChecker(c, s.cfg.Limiter, s.cfg.Logger)
		}
		return c.Next()
	}

	handlers := make([]fiber.Handler, 0, len(routeCfg.CustomMiddleware)+5)
	handlers = append(handlers, injector)

	if routeCfg.EnableCORS {
		handlers = append(handlers, middleware.CORS())
		if !s.corsPaths[path] {
			s.corsPaths[path] = true
			s.app.Options(path, injector, middleware.CORS())
		}
	}

	handlers = append(handlers, routeCfg.CustomMiddleware...)

	if routeCfg.Policy.Limited() {
		handlers = append(handlers, middleware.RateLimit(s.cfg.Limiter, s.cfg.Logger))
	}

	if routeCfg.WriteConcurrency {
		handlers = append(handlers, middleware.WriteConcurrencyLimitMiddleware(s.writes))
	}

	handlers = append(handlers, handler)
	s.app.Add(method, path, handlers...)
}

// Settings returns the runtime configuration routes are mounted with.
func (s *Server) Settings() *config.Config {
	return s.cfg.Config
}

// App exposes the underlying Fiber application for testing.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens on the configured port.
func (s *Server) Start() error {
	s.cfg.Logger.Info("starting http server", zap.String("addr", ":"+s.cfg.Config.Port))
	return s.app.Listen(":" + s.cfg.Config.Port)
}

// StartAsync starts the server in a new goroutine.
func (s *Server) StartAsync() error {
	go func() {
		if err := s.Start(); err != nil {
			s.cfg.Logger.Error("fiber listen failed", zap.Error(err))
		}
	}()
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		done <- s.app.Shutdown()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// ErrorHandler is the outermost boundary for handler errors and recovered
// panics. Soft routes still answer 200 with their degraded body.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}

		if status >= fiber.StatusInternalServerError {
			log.Error("request failed",
				zap.Error(err),
				zap.String("path", c.Path()),
				zap.String("method", c.Method()),
				zap.Int("status", status),
			)
		}

		if respond.IsSoft(c) {
			if status < fiber.StatusInternalServerError {
				return respond.Fail(c, status, errorCode(status), fe.Message)
			}
			return respond.Fail(c, status, "temporarily_unavailable", "service temporarily unavailable")
		}

		message := respond.GenericServerError
		if fe != nil && status < fiber.StatusInternalServerError {
			message = fe.Message
		}
		return respond.Fail(c, status, errorCode(status), message)
	}
}

// errorCode turns an HTTP status into a snake_case code, e.g. 404 -> not_found.
func errorCode(status int) string {
	text := utils.StatusMessage(status)
	if text == "" {
		return "error"
	}
	return strings.ReplaceAll(strings.ToLower(text), " ", "_")
}
