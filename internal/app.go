package internal

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"poplift/internal/config"
	"poplift/internal/database"
	"poplift/internal/jobs"
	"poplift/internal/server"
)

// App wraps the server application with background workers.
type App struct {
	*server.Application
	dispatcher *jobs.Dispatcher
}

// NewApp creates the application from the process environment.
func NewApp() (*App, error) {
	LoadDotEnv()

	cfg := config.Get()

	application, err := server.NewApplication(server.ApplicationOptions{
		Config:         cfg,
		RouteMountFunc: MountRoutes,
	})
	if err != nil {
		return nil, err
	}

	return &App{
		Application: application,
		dispatcher:  jobs.NewMaintenanceDispatcher(cfg, application.Logger, application.DBManager),
	}, nil
}

// LoadDotEnv loads ./.env when present. Variables already set win.
func LoadDotEnv() {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}
}

// RunMigrations migrates the schema.
func RunMigrations(app *App) error {
	db, err := app.DBManager.Connect()
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	// Checkpoint WAL to ensure migrations are persisted
	if err := app.DBManager.CheckpointWAL("FULL"); err != nil {
		app.Logger.Warn("failed to checkpoint WAL after migration", zap.Error(err))
	}
	return nil
}

// PrepareSchema migrates when auto-migrate is on, and otherwise refuses to
// boot against a schema that is missing tables or columns.
func PrepareSchema(app *App) error {
	if app.Config.AutoMigrate {
		return RunMigrations(app)
	}

	db, err := app.DBManager.Connect()
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	if err := database.VerifySchema(db); err != nil {
		return fmt.Errorf("schema check failed (run `poplift migrate`): %w", err)
	}
	return nil
}

// Start begins the HTTP server and maintenance dispatcher.
func (a *App) Start() error {
	if err := a.dispatcher.Start(); err != nil {
		return err
	}
	if err := a.Application.Start(); err != nil {
		a.dispatcher.Stop()
		return err
	}
	return nil
}

// StartAsync starts the components asynchronously.
func (a *App) StartAsync() error {
	if err := a.dispatcher.Start(); err != nil {
		return err
	}
	if err := a.Application.StartAsync(); err != nil {
		a.dispatcher.Stop()
		return err
	}
	return nil
}

// Shutdown stops background workers first, then the HTTP server.
func (a *App) Shutdown(ctx context.Context) error {
	a.dispatcher.Stop()
	return a.Application.Shutdown(ctx)
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run(timeout time.Duration) error {
	if err := a.StartAsync(); err != nil {
		return err
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	a.Logger.Info("shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := a.Shutdown(ctx); err != nil {
		a.Logger.Error("graceful shutdown failed", zap.Error(err))
		return err
	}

	a.Logger.Info("shutdown complete")
	return nil
}

// RunMaintenance runs every maintenance processor once.
func (a *App) RunMaintenance(ctx context.Context) int {
	return a.dispatcher.RunOnce(ctx)
}

// GetDB returns the service database connection.
func (a *App) GetDB() (*gorm.DB, error) {
	return a.DBManager.Connect()
}
