package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	goredis "github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/tokenmint/internal/tokens/service"
	"github.com/aussiebroadwan/tokenmint/internal/tokens/store"
	"github.com/aussiebroadwan/tokenmint/internal/tokens/store/drivers/memory"
	redisstore "github.com/aussiebroadwan/tokenmint/internal/tokens/store/drivers/redis"
	"github.com/aussiebroadwan/tokenmint/internal/tokens/store/drivers/sqlite"
	"github.com/aussiebroadwan/tokenmint/pkg/principal"
	"github.com/aussiebroadwan/tokenmint/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application assembles the token engine with the configured store driver
// and runs the background housekeeping sweeper until shutdown.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db store.Store

	tokenService        *service.TokenService
	housekeepingService *service.HousekeepingService
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "tokenmint",
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initStore(); err != nil {
		return nil, err
	}

	app.tokenService = service.NewTokenService(app.db, passthroughUsers{}, cfg.CleanupInterval)
	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		cfg.HousekeepingInterval,
	)

	return app, nil
}

// TokenService exposes the token engine for embedding callers.
func (app *Application) TokenService() *service.TokenService {
	return app.tokenService
}

// Run starts housekeeping and blocks until a shutdown signal arrives.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("token engine started",
		"driver", app.cfg.StoreDriver,
		"version", BuildVersion,
	)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	sig := <-shutdown
	app.logger.Info("shutdown signal received", "signal", sig)

	return app.Shutdown()
}

// Shutdown stops housekeeping and closes the store.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down token engine...")

	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing store", "error", err)
		return err
	}

	app.logger.Info("token engine stopped")
	return nil
}

func (app *Application) initStore() error {
	switch app.cfg.StoreDriver {
	case "memory":
		app.db = memory.NewStore()

	case "sqlite":
		dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
		db, err := sqlite.NewStore(dsn)
		if err != nil {
			return fmt.Errorf("failed to open sqlite store: %w", err)
		}
		if err := db.ApplyMigrations(); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to apply migrations: %w", err)
		}
		app.logger.Info("database migrations applied successfully")
		app.db = db

	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr:     app.cfg.RedisAddr,
			Password: app.cfg.RedisPassword,
			DB:       app.cfg.RedisDB,
		})
		db := redisstore.NewStore(client)

		ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to reach redis at %s: %w", app.cfg.RedisAddr, err)
		}
		app.db = db

	default:
		return fmt.Errorf("unknown store driver %q", app.cfg.StoreDriver)
	}
	return nil
}

// passthroughUsers trusts every non-blank subject. The identity backend is
// external to this service; deployments embedding the engine swap in their
// own UserManager.
type passthroughUsers struct{}

func (passthroughUsers) AuthenticateUser(_ context.Context, subject string) (principal.Principal, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return principal.Anonymous(), nil
	}
	return principal.New(principal.AuthTypeOAuth,
		principal.Claim{Type: principal.ClaimName, Value: subject},
	), nil
}
