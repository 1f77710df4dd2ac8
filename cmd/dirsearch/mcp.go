package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	mcpTransport "github.com/kailas-cloud/dirsearch/internal/transport/mcp"
	"github.com/kailas-cloud/dirsearch/internal/version"
)

var mcpAgent string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the search tool over MCP stdio for one agent",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if mcpAgent == "" {
			return errors.New("--agent is required")
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, env)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.db.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		// Only an in-process index needs this process to keep it filled.
		if err := a.wire(ctx, a.inProcessIndex()); err != nil {
			return err
		}
		a.startSync()
		a.backfill(ctx)

		if err := mcpTransport.New(a.tool, version.Version, a.logger).ServeStdio(ctx, mcpAgent); err != nil {
			return fmt.Errorf("mcp stdio: %w", err)
		}
		return nil
	},
}

func init() {
	mcpCmd.Flags().StringVar(&mcpAgent, "agent", "", "agent identity the tool runs as")
}
