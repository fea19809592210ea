package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/victoralfred/kube_provisioner/internal/propagation"
	"github.com/victoralfred/kube_provisioner/pkg/config"
	"github.com/victoralfred/kube_provisioner/pkg/errors"
)

func (c *cli) newVerifyCmd() *cobra.Command {
	var repair bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare every landlord row with its subscription",
		Long: `Scan all subscriptions and report landlord rows that are missing or
differ from the projection of their subscription. With --repair the
landlord rows are re-derived.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			a, err := c.build(ctx, func(cfg *config.Config) {
				cfg.Journal.Enabled = repair && cfg.Journal.Enabled
			})
			if err != nil {
				return err
			}
			defer a.Close()

			subs, err := a.Subscriptions.Repository.Scan(ctx, nil)
			if err != nil {
				return fmt.Errorf("failed to scan subscriptions: %w", err)
			}

			var drifted int
			for _, sub := range subs {
				var problem string
				landlord, err := a.Landlords.Repository.Get(ctx, sub.ID)
				switch {
				case errors.IsNotFound(err):
					problem = "missing"
				case err != nil:
					return fmt.Errorf("failed to read landlord %s: %w", sub.ID, err)
				default:
					if fields := propagation.Verify(sub, landlord); len(fields) > 0 {
						problem = "drift: " + strings.Join(fields, ",")
					}
				}
				if problem == "" {
					continue
				}

				drifted++
				if !repair {
					fmt.Fprintf(out, "%s\t%s\n", sub.ID, problem)
					continue
				}
				if _, err := a.Propagator.DeriveLandlord(ctx, sub, ""); err != nil {
					fmt.Fprintf(out, "%s\t%s\trepair failed: %v\n", sub.ID, problem, err)
					continue
				}
				fmt.Fprintf(out, "%s\t%s\trepaired\n", sub.ID, problem)
			}

			fmt.Fprintf(out, "%d subscription(s), %d inconsistent\n", len(subs), drifted)
			if drifted > 0 && !repair {
				return fmt.Errorf("%d landlord row(s) inconsistent", drifted)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&repair, "repair", false, "re-derive inconsistent landlord rows")
	return cmd
}
