package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/straja-ai/ulap/internal/auth"
	"github.com/straja-ai/ulap/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	setupLogger(os.Stderr, cfg.Logging)
	slog.Info("configuration loaded", "level", cfg.Logging.Level, "camera", cfg.Camera.Type)

	a, err := newApp(cfg, true)
	if err != nil {
		return err
	}
	slog.Info("classifier ready", "model", cfg.Model.Path, "categories", a.reg.Size())

	authz, err := auth.New(cfg.Server.APIKeys)
	if err != nil {
		a.close(context.Background())
		return err
	}

	srv := server.New(cfg.Server, authz, a.svc, server.Options{
		Version: Version,
		Emitter: a.emitter,
	})

	runErr := srv.Run(ctx)
	if runErr != nil {
		slog.Error("server error", "error", runErr)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Events.ShutdownTimeout.Std())
	defer shutdownCancel()
	a.close(shutdownCtx)

	slog.Info("shutdown complete")
	return runErr
}
