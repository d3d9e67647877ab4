package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/airside-ops/apron/pkg/api"
	"github.com/airside-ops/apron/pkg/config"
	"github.com/airside-ops/apron/pkg/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Long: `Starts the event API: session lifecycle, streaming turns over SSE,
final reports, and health. Configuration comes from the environment plus
an optional APRON_CONFIG_FILE overrides file.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := slog.Default()

	cfg, err := config.Initialize(ctx)
	if err != nil {
		return fmt.Errorf("initialize configuration: %w", err)
	}

	rt, err := buildRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	srv := api.NewServer(cfg.Server, rt.service, rt.store, rt.pool, rt.db, rt.playbooks, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "host", cfg.Server.Host, "port", cfg.Server.Port)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stats := cfg.Stats()
	logger.Info("Apron started",
		"version", version.Full(),
		"llm_provider", stats.LLMProvider,
		"session_backend", stats.SessionBackend,
		"workers", stats.Workers)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	var runErr error
	select {
	case sig := <-sigCh:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		logger.Error("Server error triggered shutdown", "error", err)
		runErr = err
	}

	// New requests stop first; in-flight turns get the shutdown budget to
	// land. The deferred runtime Close then drains the pool and the store.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("Shutdown complete")
	return runErr
}
