package server

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"poplift/internal/auth"
	"poplift/internal/config"
	"poplift/internal/database"
	appLogger "poplift/internal/pkg/logger"
	"poplift/internal/pkg/ratelimit"
)

// Application wires together configuration, logging, database, rate limiting and HTTP server.
type Application struct {
	Config    *config.Config
	Logger    *zap.Logger
	DBManager *database.Manager
	Limiter   ratelimit.Checker
	Server    *Server

	closers []func() error
}

// ApplicationOptions configure application bootstrapping.
type ApplicationOptions struct {
	Config         *config.Config
	Logger         *zap.Logger
	RouteMountFunc func(*Server)
}

// NewApplication constructs an application.
func NewApplication(opts ApplicationOptions) (*Application, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Get()
	}

	appLog := opts.Logger
	if appLog == nil {
		var err error
		appLog, err = appLogger.Initialize(cfg)
		if err != nil {
			return nil, fmt.Errorf("server: initialize logger: %w", err)
		}
	}

	app := &Application{
		Config:    cfg,
		Logger:    appLog,
		DBManager: database.NewManager(cfg, appLog),
	}

	limiter, err := app.buildLimiter()
	if err != nil {
		return nil, err
	}
	app.Limiter = limiter

	serverCfg := DefaultConfig()
	serverCfg.Config = cfg
	serverCfg.Logger = appLog
	serverCfg.DBManager = app.DBManager
	serverCfg.Limiter = limiter
	serverCfg.Verifier = auth.NewJWTVerifier(cfg.JWTSecret, cfg.JWTAudience)
	if cfg.MaxConcurrentWrites > 0 {
		serverCfg.MaxConcurrentWrites = cfg.MaxConcurrentWrites
	}

	srv, err := NewServer(serverCfg)
	if err != nil {
		return nil, fmt.Errorf("server: create server: %w", err)
	}
	if opts.RouteMountFunc != nil {
		opts.RouteMountFunc(srv)
	}
	app.Server = srv

	return app, nil
}

func (a *Application) buildLimiter() (ratelimit.Checker, error) {
	local := ratelimit.NewLimiter(ratelimit.WithSweepThreshold(a.Config.RateLimitSweepThreshold))
	if a.Config.RedisURL == "" {
		a.Logger.Info("rate limiting with in-process counters; limits apply per instance")
		return local, nil
	}

	rdb, err := ratelimit.NewRedisClient(a.Config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	a.closers = append(a.closers, rdb.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		a.Logger.Warn("redis unreachable at startup, rate limiter will fall back per request", zap.Error(err))
	} else {
		a.Logger.Info("rate limiting with shared redis counters")
	}

	return ratelimit.NewRedisLimiter(rdb, a.Logger, ratelimit.WithFallback(local)), nil
}

// Start launches the HTTP server.
func (a *Application) Start() error {
	return a.Server.Start()
}

// StartAsync launches the HTTP server asynchronously.
func (a *Application) StartAsync() error {
	return a.Server.StartAsync()
}

// Shutdown gracefully stops the server and closes resources.
func (a *Application) Shutdown(ctx context.Context) error {
	if err := a.Server.Shutdown(ctx); err != nil {
		return err
	}
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			a.Logger.Warn("failed to close resource", zap.Error(err))
		}
	}
	return a.DBManager.Close()
}
