package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/dirsearch/internal/config"
	chiTransport "github.com/kailas-cloud/dirsearch/internal/transport/chi"
	mcpTransport "github.com/kailas-cloud/dirsearch/internal/transport/mcp"
	"github.com/kailas-cloud/dirsearch/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the MCP endpoint and background synchronization",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func serve(ctx context.Context) error {
	a, err := newApp(ctx, env)
	if err != nil {
		return err
	}
	defer a.close()
	logger := a.logger

	logger.Info("Starting dirsearch server",
		zap.String("commit", version.Commit),
		zap.String("env", a.env),
		zap.Int("http_port", a.cfg.HTTP.Port),
		zap.String("db_driver", a.cfg.Database.Driver),
		zap.String("semantic_backend", a.cfg.Semantic.Backend),
	)

	if err := a.db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := a.wire(ctx, true); err != nil {
		return err
	}
	a.startSync()
	a.backfill(ctx)

	var resync chiTransport.Resyncer
	if a.syncer != nil {
		resync = a.syncer
	}

	server := chiTransport.NewServer(a.catalog, a.access, resync, a.tool, a.health, logger)
	router := chiTransport.NewRouter(server, chiTransport.RouterConfig{
		AdminKeys: a.cfg.Auth.AdminKeys,
		APIKeys:   a.cfg.Auth.APIKeys,
		MCP:       mcpTransport.New(a.tool, version.Version, logger).Handler(chiTransport.AgentHeader),
		Logger:    logger,
	})

	addr := fmt.Sprintf(":%d", a.cfg.HTTP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: config.Sec(a.cfg.HTTP.ReadTimeoutSec),
		ReadTimeout:       config.Sec(a.cfg.HTTP.ReadTimeoutSec),
		WriteTimeout:      config.Sec(a.cfg.HTTP.WriteTimeoutSec),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(a.cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
	return nil
}
