package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newExportCmd builds the on-demand JSON export command.
func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write a dated JSON export of all local records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(false, defaultHTTPClient())
			if err != nil {
				return err
			}
			defer a.Close()

			path, err := a.svc.ExportData(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Println(path)

			return nil
		},
	}
}
