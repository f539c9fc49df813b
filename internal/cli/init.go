// Package cli provides the initialization and terminal rendering helpers
// shared by the rekord commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"rekord/internal/cache"
	"rekord/internal/config"
	"rekord/internal/log"
	"rekord/internal/services"
	"rekord/internal/storage"
)

// SetupLogger builds the process logger from the configured level and
// format and installs it as the slog default. Terminal commands log to
// stderr so their stdout stays pipeable.
func SetupLogger(cfg *config.Config, format string, w io.Writer) *log.Logger {
	lc := log.DefaultConfig()
	lc.Format = format
	if w != nil {
		lc.Output = w
	}
	if cfg != nil {
		lc.Level = cfg.SlogLevel()
	}
	logger := log.New(lc)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration from the environment and
// validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// OpenRepository opens the configured data source. For SQLite the schema
// migrations are applied first.
func OpenRepository(logger *log.Logger, cfg *config.Config) (*storage.Repository, error) {
	if cfg.DBDriver == config.DriverSQLite {
		if err := storage.RunMigrations(cfg.DBDSN); err != nil {
			return nil, fmt.Errorf("migrate %s: %w", cfg.DBDSN, err)
		}
	}
	repo, err := storage.Open(cfg)
	if err != nil {
		return nil, err
	}
	logger.WithComponent(log.ComponentStorage).Info("Data source opened", "driver", cfg.DBDriver)
	return repo, nil
}

// NewReportService wires the repository, an option cache sized for the
// option fields, and an optional event publisher.
func NewReportService(logger *log.Logger, cfg *config.Config, repo services.RecordSource, publisher services.EventPublisher) (*services.ReportService, *cache.OptionCache) {
	options := cache.NewOptionCache(16, cfg.OptionsCacheTTL)
	return services.NewReportService(repo, options, publisher, logger), options
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		if cleanup != nil {
			cleanup(shutdownCtx)
		}

		cancel()

		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
