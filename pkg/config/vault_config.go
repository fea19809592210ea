package config

import (
	"context"
	"fmt"

	"github.com/victoralfred/kube_provisioner/pkg/logger"
	"github.com/victoralfred/kube_provisioner/pkg/secrets"
	"github.com/victoralfred/kube_provisioner/pkg/vault"
)

// LoadWithVault loads configuration and, when Vault is enabled, replaces the
// credentials of the selected store backend with the ones kept in Vault.
// The returned manager is nil when Vault is disabled.
func LoadWithVault(ctx context.Context, configFile string, log *logger.Logger) (*Config, secrets.Manager, error) {
	cfg, err := Load(configFile)
	if err != nil {
		return nil, nil, err
	}

	if !cfg.Vault.Enabled {
		log.Info("vault disabled, using configuration credentials")
		return cfg, nil, nil
	}

	client, err := vault.NewClient(cfg.Vault.ClientConfig(), log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	manager := secrets.NewCachedManager(secrets.NewVaultManager(client, log), cfg.Vault.CacheTTL)

	if err := manager.Health(ctx); err != nil {
		manager.Close()
		return nil, nil, fmt.Errorf("vault health check failed: %w", err)
	}

	if err := ApplySecrets(ctx, cfg, manager); err != nil {
		manager.Close()
		return nil, nil, err
	}

	if err := cfg.Validate(); err != nil {
		manager.Close()
		return nil, nil, err
	}

	log.WithField("backend", cfg.Store.Backend).Info("loaded store credentials from vault")
	return cfg, manager, nil
}

// ApplySecrets overlays backend credentials from manager onto cfg. The
// memory backend needs none.
func ApplySecrets(ctx context.Context, cfg *Config, manager secrets.Manager) error {
	switch cfg.Store.Backend {
	case BackendPostgres:
		creds, err := manager.GetDatabaseCredentials(ctx)
		if err != nil {
			return fmt.Errorf("failed to load database credentials: %w", err)
		}
		cfg.Database.Host = creds.Host
		cfg.Database.Port = creds.Port
		cfg.Database.User = creds.Username
		cfg.Database.Password = creds.Password
		if creds.Database != "" {
			cfg.Database.DBName = creds.Database
		}
		cfg.Database.SSLMode = creds.SSLMode

	case BackendRedis:
		creds, err := manager.GetRedisCredentials(ctx)
		if err != nil {
			return fmt.Errorf("failed to load redis credentials: %w", err)
		}
		cfg.Redis.Host = creds.Host
		cfg.Redis.Port = creds.Port
		cfg.Redis.Password = creds.Password
		cfg.Redis.DB = creds.DB
	}
	return nil
}

// ClientConfig converts to the Vault client configuration
func (c *VaultConfig) ClientConfig() vault.Config {
	return vault.Config{
		Address:        c.Address,
		Token:          c.Token,
		KubernetesRole: c.KubernetesRole,
		KubernetesPath: c.KubernetesPath,
		TokenPath:      c.TokenPath,
		MountPath:      c.MountPath,
		SecretPath:     c.SecretPath,
		RenewToken:     c.RenewToken,
		RenewInterval:  c.RenewInterval,
		UseKubernetes:  c.UseKubernetes,
	}
}
