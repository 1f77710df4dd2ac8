package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the catalog schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context(), env)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.db.Migrate(cmd.Context()); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		a.logger.Info("Schema is up to date", zap.String("driver", a.cfg.Database.Driver))
		return nil
	},
}

var (
	resyncAccount string
	resyncList    string
	resyncTimeout time.Duration
)

var resyncCmd = &cobra.Command{
	Use:   "resync",
	Short: "Backfill missing or stale embeddings and wait for the queue to drain",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if resyncList != "" && resyncAccount == "" {
			return errors.New("--account is required with --list")
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, env)
		if err != nil {
			return err
		}
		defer a.close()

		if a.inProcessIndex() {
			return fmt.Errorf("the %s index lives inside the serving process and is rebuilt on start", a.cfg.Semantic.Backend)
		}
		if err := a.wire(ctx, true); err != nil {
			return err
		}
		if a.syncer == nil {
			return errors.New("no semantic backend configured")
		}
		a.startSync()

		listID := ""
		if resyncList != "" {
			l, err := a.catalog.GetList(ctx, resyncAccount, resyncList)
			if err != nil {
				return fmt.Errorf("resolve list: %w", err)
			}
			listID = l.ID()
		}

		n, err := a.syncer.Resync(ctx, listID)
		if err != nil {
			return fmt.Errorf("resync: %w", err)
		}
		a.logger.Info("Resync scheduled", zap.Int("records", n))

		waitCtx, cancel := context.WithTimeout(ctx, resyncTimeout)
		defer cancel()
		return a.drain(waitCtx)
	},
}

// drain blocks until the sync outbox is empty.
func (a *app) drain(ctx context.Context) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		n, err := a.outbox.Len(ctx)
		if err != nil {
			return fmt.Errorf("outbox length: %w", err)
		}
		if n == 0 {
			a.logger.Info("Sync queue drained")
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%d tasks still pending: %w", n, ctx.Err())
		case <-ticker.C:
		}
	}
}

func init() {
	resyncCmd.Flags().StringVar(&resyncAccount, "account", "", "account of the list to resync")
	resyncCmd.Flags().StringVar(&resyncList, "list", "", "list to resync (all lists when empty)")
	resyncCmd.Flags().DurationVar(&resyncTimeout, "timeout", 10*time.Minute, "how long to wait for the queue to drain")
}
