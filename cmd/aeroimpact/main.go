package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/i474232898/aeroimpact/internal/config"
)

type rootOptions struct {
	configPath string
	cfg        *config.AppConfig
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "aeroimpact",
		Short: "Live flight telemetry gateway and weather impact scoring",
		Long: `aeroimpact serves normalized OpenSky flight positions and scores each
flight's exposure to weather using a risk service and satellite imagery.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			setupLogging(cfg.LogLevel)
			opts.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"path to a YAML config file (defaults to $"+config.PathEnv+")")

	root.AddCommand(newServeCmd(opts), newFlightsCmd(opts), newScoreCmd(opts))
	return root
}

func setupLogging(level string) {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: config.ParseLogLevel(level)})
	slog.SetDefault(slog.New(handler))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
