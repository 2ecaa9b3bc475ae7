package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/bookmarkd/internal/usecase/backfill"
)

func backfillCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Create missing bookmark rows from indexed records",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			a, err := newApp(ctx, "backfill")
			if err != nil {
				return err
			}
			defer a.close()

			report, err := backfill.New(a.sites, a.bookmarks, a.logger).Run(ctx, dryRun)
			if err != nil {
				return fmt.Errorf("backfill: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"scanned=%d created=%d skipped=%d no_url=%d failed=%d dry_run=%t\n",
				report.Scanned, report.Created, report.Skipped, report.NoURL, report.Failed, dryRun)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be created without writing")
	return cmd
}
