package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"rekord/internal/amqp"
	"rekord/internal/cache"
	"rekord/internal/cli"
	"rekord/internal/config"
	apphttp "rekord/internal/http"
	"rekord/internal/log"
	"rekord/internal/middleware/ratelimit"
	"rekord/internal/services"
)

func newServeCmd() *cobra.Command {
	var rpm int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadAndValidateConfig()
			if err != nil {
				return err
			}
			logger := cli.SetupLogger(cfg, logFormat, os.Stdout)
			return serve(logger, cfg, rpm)
		},
	}
	cmd.Flags().IntVar(&rpm, "rate-limit", ratelimit.DefaultConfig().RequestsPerMinute, "data requests per minute per client")
	return cmd
}

func serve(logger *log.Logger, cfg *config.Config, rpm int) error {
	repo, err := cli.OpenRepository(logger, cfg)
	if err != nil {
		return err
	}

	// A nil *amqp.Client must not be stored in the interface.
	var publisher services.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey)
		if err != nil {
			logger.WithComponent(log.ComponentAMQP).Warn("AMQP unavailable, report events disabled", log.FieldError, err)
		} else {
			publisher = client
			logger.WithComponent(log.ComponentAMQP).Info("Publishing report events", "exchange", cfg.AMQPExchange)
		}
	}

	svc, options := cli.NewReportService(logger, cfg, repo, publisher)

	cacheManager := cache.NewManager(logger.WithComponent(log.ComponentCache).Logger)
	cacheManager.Register(options)
	cacheManager.StartCleanup(cfg.OptionsCacheTTL)

	rl := ratelimit.DefaultConfig()
	rl.RequestsPerMinute = rpm
	srv, err := apphttp.NewServer(":"+cfg.Port, svc, apphttp.Options{
		Logger:         logger,
		Settings:       cfg.Redacted(),
		RateLimit:      rl,
		TrustedProxies: cfg.TrustedProxies,
		Version:        version,
	})
	if err != nil {
		_ = svc.Close()
		return err
	}

	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = cfg.QueryTimeout + 10*time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		cacheManager.Stop()
		if err := svc.Close(); err != nil {
			logger.Error("Failed to release resources", log.FieldError, err)
		}
	})

	logger.Info("Starting rekord server",
		log.FieldOperation, log.OpStartup,
		"port", cfg.Port,
		"driver", cfg.DBDriver,
		"version", version)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		cacheManager.Stop()
		_ = svc.Close()
		return err
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully", log.FieldOperation, log.OpShutdown)
	return nil
}
