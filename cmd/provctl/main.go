// Command provctl is the operator CLI for the provisioning control plane.
// It talks to the same store as the server and is used to finish
// interrupted cascades and to check data before it reaches the API.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/victoralfred/kube_provisioner/internal/app"
	"github.com/victoralfred/kube_provisioner/pkg/config"
	"github.com/victoralfred/kube_provisioner/pkg/kvstore"
	"github.com/victoralfred/kube_provisioner/pkg/logger"
)

// storeOpener connects the configured backend
type storeOpener func(ctx context.Context, cfg *config.Config, log *logger.Logger) (kvstore.Store, error)

type cli struct {
	configFile string
	logLevel   string
	openStore  storeOpener
}

func main() {
	if err := newRootCmd(app.OpenStore).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd(open storeOpener) *cobra.Command {
	c := &cli{openStore: open}

	root := &cobra.Command{
		Use:   "provctl",
		Short: "Operate the kube_provisioner control plane",
		Long: `Operator commands for the provisioning control plane.

Configuration is read the same way as the server: defaults, an optional
--config file and environment variables such as STORE_BACKEND or JOURNAL_PATH.

Examples:
  provctl reconcile
  provctl check-cidr 10.20.0.0/16
  provctl verify --repair`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&c.configFile, "config", "", "config file (yaml, json or toml)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "log level")

	root.AddCommand(c.newReconcileCmd())
	root.AddCommand(c.newCheckCIDRCmd())
	root.AddCommand(c.newVerifyCmd())
	return root
}

// build loads configuration, applies fn to it and wires the app
func (c *cli) build(ctx context.Context, fn func(*config.Config)) (*app.App, error) {
	log := logger.NewWithWriter(c.logLevel, os.Stderr)

	cfg, secretsManager, err := config.LoadWithVault(ctx, c.configFile, log)
	if err != nil {
		return nil, err
	}
	// credentials are already applied to cfg
	if secretsManager != nil {
		secretsManager.Close()
	}
	if fn != nil {
		fn(cfg)
	}

	kv, err := c.openStore(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	a, err := app.New(cfg, kv, log)
	if err != nil {
		kv.Close()
		return nil, err
	}
	return a, nil
}
