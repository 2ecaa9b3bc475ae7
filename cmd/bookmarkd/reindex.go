package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func reindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Drop and recreate the search index from the current index config",
		Long: "Drops the FT index and creates it again with the configured dimensions and HNSW parameters. " +
			"Stored records are kept and indexed again by the server.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			a, err := newApp(ctx, "reindex")
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.sites.Reindex(ctx); err != nil {
				return fmt.Errorf("reindex: %w", err)
			}
			a.logger.Info("Search index recreated",
				zap.String("index", a.cfg.Index.Name),
				zap.String("namespace", a.cfg.Index.Namespace),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "reindexed %s/%s\n", a.cfg.Index.Name, a.cfg.Index.Namespace)
			return nil
		},
	}
}
