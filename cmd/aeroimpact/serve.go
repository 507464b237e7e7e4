package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"

	httpapi "github.com/i474232898/aeroimpact/internal/api/http"
	"github.com/i474232898/aeroimpact/internal/config"
	"github.com/i474232898/aeroimpact/internal/scheduler"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), opts.cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.AppConfig) error {
	comps, err := buildComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer comps.Close()

	if cfg.Scheduler.Enabled {
		sched := scheduler.New(scheduler.Config{
			WarmInterval:    cfg.Scheduler.WarmInterval,
			AnalyzeInterval: cfg.Scheduler.AnalyzeInterval,
			AnalyzeLimit:    cfg.Scheduler.AnalyzeLimit,
		}, comps.snapshots, comps.service)
		if err := sched.Start(); err != nil {
			return err
		}
		defer sched.Stop()
	}

	app := fiber.New(fiber.Config{
		AppName:               "aeroimpact",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          2 * time.Minute,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	app.Use(logger.New())
	app.Use(recover.New())

	httpapi.RegisterRoutes(app, httpapi.Deps{
		Flights:            comps.snapshots,
		Impacts:            comps.service,
		Store:              comps.store,
		Metrics:            comps.metrics,
		InternalToken:      cfg.API.InternalToken,
		RateLimitPerMinute: cfg.API.RateLimitPerMinute,
	})

	listenErr := make(chan error, 1)
	go func() {
		slog.Info("http: listening", "port", cfg.Port)
		listenErr <- app.Listen(":" + cfg.Port)
	}()

	select {
	case <-ctx.Done():
	case err := <-listenErr:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("http: error during shutdown", "err", err)
	}
	slog.Info("http: server stopped")
	return nil
}
