package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/victoralfred/kube_provisioner/pkg/config"
	"github.com/victoralfred/kube_provisioner/pkg/journal"
)

func (c *cli) newReconcileCmd() *cobra.Command {
	var (
		journalPath string
		dryRun      bool
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Re-run propagation steps that never completed",
		Long: `Read the propagation journal and re-run every step whose latest entry
is not applied. Steps recompute their target from the current records, so
running reconcile more than once is safe.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			a, err := c.build(ctx, func(cfg *config.Config) {
				if journalPath != "" {
					cfg.Journal.Path = journalPath
				}
				cfg.Journal.Enabled = true
			})
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := journal.ReadAll(a.Config.Journal.Path)
			if err != nil {
				return fmt.Errorf("failed to read journal: %w", err)
			}

			if dryRun {
				pending := journal.Pending(entries)
				for _, e := range pending {
					fmt.Fprintf(out, "%s\t%s\t%s/%s\t%s\n", e.StepID, e.Kind, e.TargetType, e.TargetID, e.Result)
				}
				fmt.Fprintf(out, "%d pending step(s)\n", len(pending))
				return nil
			}

			result, replayErr := a.Propagator.Replay(ctx, entries)
			if result != nil {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return err
				}
			}
			return replayErr
		},
	}

	cmd.Flags().StringVar(&journalPath, "journal-path", "", "journal directory (defaults to journal.path)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list pending steps without applying them")
	return cmd
}
