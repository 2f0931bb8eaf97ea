package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soaringjerry/modern360/internal/services"
)

var rebuildAssessment int64

func init() {
	rebuildCmd.Flags().Int64Var(&rebuildAssessment, "assessment", 0, "only rebuild this assessment (default all)")
	rootCmd.AddCommand(migrateCmd, rebuildCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema migrations and seed the system records",
	Long: `Apply pending schema migrations, then create the system company,
system user and question template if they are missing.

Both steps are idempotent and also run when an app starts.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext()
		defer stop()
		rt, err := setup(ctx)
		if err != nil {
			return err
		}
		defer rt.close()
		fmt.Fprintf(cmd.OutOrStdout(), "database ready: %s\n", rt.cfg.Database.Path)
		return nil
	},
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild-projections",
	Short: "Recompute the column rows of stored responses",
	Long: `Recompute response detail rows from the stored answers, using the
configured projection columns.

Examples:
  # Rebuild everything
  modern360 rebuild-projections

  # Rebuild one assessment
  modern360 rebuild-projections --assessment 42`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext()
		defer stop()
		rt, err := setup(ctx)
		if err != nil {
			return err
		}
		defer rt.close()
		svc := services.NewResponseService(rt.store, rt.schema, rt.logger, nil)
		n, err := svc.RebuildProjections(ctx, rebuildAssessment)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "rebuilt %d response rows\n", n)
		return nil
	},
}
