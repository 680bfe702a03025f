package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// newSyncCmd builds the one-shot reconciliation command.
func newSyncCmd() *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one full push/pull cycle against the remote store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(false, defaultHTTPClient())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.svc.ManualSync(ctx, full); err != nil {
				return fmt.Errorf("sync failed (status %s): %w", a.svc.Status(), err)
			}

			snap := a.svc.View()
			fmt.Printf("synced: %d records local, status %s\n", snap.EntityCount(), a.svc.Status())

			if a.svc.HasPendingBlobs() {
				fmt.Println("document transfers still pending; run watch or sync again to finish")
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "retry errored document downloads before pulling")

	return cmd
}
