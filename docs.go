package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lawdeskhq/lawdesk/internal/sync"
)

// newDocsCmd groups the case-document subcommands.
func newDocsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Manage case documents",
	}

	cmd.AddCommand(
		newDocsListCmd(),
		newDocsAddCmd(),
		newDocsRmCmd(),
		newDocsGetCmd(),
		newDocsRetryCmd(),
	)

	return cmd
}

func newDocsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [case-id]",
		Short: "List documents, optionally filtered by case",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(false, defaultHTTPClient())
			if err != nil {
				return err
			}
			defer a.Close()

			snap := a.svc.View()

			ids := make([]string, 0, len(snap.Documents))
			for id, doc := range snap.Documents {
				if len(args) == 1 && doc.CaseID != args[0] {
					continue
				}
				ids = append(ids, id)
			}
			sort.Strings(ids)

			for _, id := range ids {
				doc := snap.Documents[id]
				fmt.Printf("%s  %-16s  %8d  %s\n", doc.ID, doc.LocalState, doc.Size, doc.Name)
			}

			return nil
		},
	}
}

func newDocsAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <case-id> <file>...",
		Short: "Attach local files to a case",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(false, transferHTTPClient())
			if err != nil {
				return err
			}
			defer a.Close()

			caseID := args[0]

			files := make([]sync.DocumentFile, 0, len(args)-1)
			for _, p := range args[1:] {
				content, err := os.ReadFile(p)
				if err != nil {
					return fmt.Errorf("reading %s: %w", p, err)
				}

				files = append(files, sync.DocumentFile{
					Name:     filepath.Base(p),
					MimeType: mime.TypeByExtension(filepath.Ext(p)),
					Content:  content,
				})
			}

			docs, err := a.svc.AddDocuments(ctx, caseID, files)
			if err != nil {
				return err
			}

			for _, doc := range docs {
				fmt.Printf("%s  %s\n", doc.ID, doc.Name)
			}

			return nil
		},
	}
}

func newDocsRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <doc-id>",
		Short: "Delete a document locally and queue the remote removal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(false, defaultHTTPClient())
			if err != nil {
				return err
			}
			defer a.Close()

			return a.svc.DeleteDocument(cmd.Context(), args[0])
		},
	}
}

func newDocsGetCmd() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "get <doc-id>",
		Short: "Write a document's content to a file or stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(false, transferHTTPClient())
			if err != nil {
				return err
			}
			defer a.Close()

			content, err := a.svc.GetDocumentFile(ctx, args[0])
			if err != nil {
				return err
			}

			if outPath == "" || outPath == "-" {
				_, err = os.Stdout.Write(content)
				return err
			}

			return os.WriteFile(outPath, content, 0o600)
		},
	}

	cmd.Flags().StringVarP(&outPath, "output", "o", "", "output file (default stdout)")

	return cmd
}

func newDocsRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <doc-id>",
		Short: "Requeue a document whose transfer previously failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(false, transferHTTPClient())
			if err != nil {
				return err
			}
			defer a.Close()

			return a.svc.RetryDocument(ctx, args[0])
		},
	}
}
