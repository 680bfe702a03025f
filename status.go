package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newStatusCmd builds the local-state inspection command. It never
// contacts the remote beyond the initial reachability probe.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync state and local record counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(false, defaultHTTPClient())
			if err != nil {
				return err
			}
			defer a.Close()

			snap := a.svc.View()

			fmt.Printf("status:        %s\n", a.svc.Status())
			fmt.Printf("online:        %t\n", a.svc.Online())
			fmt.Printf("unsynced edits: %t\n", a.svc.IsDirty())

			if msg := a.svc.LastSyncError(); msg != "" {
				fmt.Printf("last error:    %s\n", msg)
			}

			fmt.Printf("records:       %d total\n", snap.EntityCount())
			fmt.Printf("  clients      %d\n", len(snap.Clients))
			fmt.Printf("  cases        %d\n", len(snap.Cases))
			fmt.Printf("  stages       %d\n", len(snap.Stages))
			fmt.Printf("  sessions     %d\n", len(snap.Sessions))
			fmt.Printf("  entries      %d\n", len(snap.Entries))
			fmt.Printf("  invoices     %d\n", len(snap.Invoices))
			fmt.Printf("  documents    %d\n", len(snap.Documents))

			if !snap.Deleted.Empty() {
				fmt.Println("pending deletions awaiting push")
			}
			if a.svc.HasPendingBlobs() {
				fmt.Println("document transfers pending")
			}

			return nil
		},
	}
}
