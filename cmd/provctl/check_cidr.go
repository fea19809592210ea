package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/victoralfred/kube_provisioner/pkg/config"
	"github.com/victoralfred/kube_provisioner/pkg/errors"
)

func (c *cli) newCheckCIDRCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-cidr <cidr>",
		Short: "Check a block against every registered cluster",
		Long: `Validate a CIDR block and check it for overlap with every stored cluster
range without registering anything. Prints the canonical block on success.

Examples:
  provctl check-cidr 10.20.0.0/16
  provctl check-cidr 172.16.4.0/22`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			a, err := c.build(ctx, func(cfg *config.Config) {
				cfg.Journal.Enabled = false
			})
			if err != nil {
				return err
			}
			defer a.Close()

			canonical, err := a.Clusters.Service.CheckCIDR(ctx, args[0])
			if err != nil {
				appErr := errors.From(err)
				for _, conflict := range appErr.Conflicts {
					fmt.Fprintf(out, "overlaps %s\n", conflict)
				}
				return appErr
			}

			fmt.Fprintf(out, "%s is available\n", canonical)
			return nil
		},
	}
}
