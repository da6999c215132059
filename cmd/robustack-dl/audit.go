package main

import (
	"github.com/spf13/cobra"

	"github.com/code-bush/robustack-dl/internal/audit"
	"github.com/code-bush/robustack-dl/internal/config"
	"github.com/code-bush/robustack-dl/internal/observability"
)

func newAuditCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Verify every archived file against the manifest",
		Long: "Re-hashes every file recorded in the manifest and reports files that are " +
			"missing or whose content no longer matches. Exits non-zero when any entry fails.",
		Args: cobra.NoArgs,
		RunE: a.runAudit,
	}
	cmd.Flags().StringP("manifest", "m", config.Defaults()["manifest"].(string), "Path to manifest.json")
	cmd.Flags().Int("jobs", 0, "Files hashed in parallel (0 for one per CPU)")
	return cmd
}

func (a *app) runAudit(cmd *cobra.Command, _ []string) error {
	result, err := audit.Run(cmd.Context(), a.cfg.Manifest, audit.Options{
		Jobs:   a.cfg.Jobs,
		Logger: a.log,
	})
	observability.NewPrinter(cmd.OutOrStdout()).PrintAuditResult(result)
	return err
}
