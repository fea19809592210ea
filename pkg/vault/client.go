package vault

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/victoralfred/kube_provisioner/pkg/logger"
)

// Client wraps HashiCorp Vault client for reading KV v2 secrets
type Client struct {
	client    *vaultapi.Client
	log       *logger.Logger
	config    Config
	stop      chan struct{}
	closeOnce sync.Once
}

// Config holds Vault configuration
type Config struct {
	Address        string
	Token          string // For development
	KubernetesRole string // For production with k8s auth
	KubernetesPath string // K8s auth mount path
	TokenPath      string // Path to k8s service account token
	MountPath      string // KV mount path (e.g., "secret")
	SecretPath     string // Path to secrets (e.g., "kube_provisioner")
	RenewToken     bool
	RenewInterval  time.Duration
	UseKubernetes  bool // Use k8s auth instead of token
}

// NewClient creates a new Vault client
func NewClient(cfg Config, log *logger.Logger) (*Client, error) {
	config := vaultapi.DefaultConfig()
	config.Address = cfg.Address

	client, err := vaultapi.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	vClient := &Client{
		client: client,
		log:    log,
		config: cfg,
		stop:   make(chan struct{}),
	}

	if err := vClient.authenticate(); err != nil {
		return nil, fmt.Errorf("failed to authenticate with vault: %w", err)
	}

	if cfg.RenewToken && cfg.RenewInterval > 0 {
		go vClient.startTokenRenewer()
	}

	log.Info("vault client initialized successfully")
	return vClient, nil
}

func (c *Client) authenticate() error {
	if c.config.UseKubernetes {
		return c.authenticateKubernetes()
	}
	return c.authenticateToken()
}

func (c *Client) authenticateToken() error {
	if c.config.Token == "" {
		return fmt.Errorf("vault token is required")
	}
	c.client.SetToken(c.config.Token)
	c.log.Info("authenticated with vault using token")
	return nil
}

// authenticateKubernetes logs in with the pod's service account token
func (c *Client) authenticateKubernetes() error {
	jwtBytes, err := os.ReadFile(c.config.TokenPath)
	if err != nil {
		return fmt.Errorf("failed to read service account token: %w", err)
	}

	options := map[string]interface{}{
		"jwt":  string(jwtBytes),
		"role": c.config.KubernetesRole,
	}

	path := fmt.Sprintf("auth/%s/login", c.config.KubernetesPath)
	secret, err := c.client.Logical().Write(path, options)
	if err != nil {
		return fmt.Errorf("kubernetes auth failed: %w", err)
	}

	if secret == nil || secret.Auth == nil {
		return fmt.Errorf("kubernetes auth returned no token")
	}

	c.client.SetToken(secret.Auth.ClientToken)
	c.log.Info("authenticated with vault using kubernetes service account")
	return nil
}

func (c *Client) startTokenRenewer() {
	ticker := time.NewTicker(c.config.RenewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.renewToken(); err != nil {
				c.log.Error("failed to renew vault token", err)
			} else {
				c.log.Debug("vault token renewed successfully")
			}
		case <-c.stop:
			return
		}
	}
}

func (c *Client) renewToken() error {
	secret, err := c.client.Auth().Token().RenewSelf(0)
	if err != nil {
		return fmt.Errorf("token renewal failed: %w", err)
	}

	if secret == nil {
		return fmt.Errorf("token renewal returned nil")
	}

	return nil
}

// GetSecret retrieves a secret from Vault KV v2
func (c *Client) GetSecret(ctx context.Context, path string) (map[string]interface{}, error) {
	fullPath := fmt.Sprintf("%s/data/%s/%s", c.config.MountPath, c.config.SecretPath, path)

	secret, err := c.client.Logical().ReadWithContext(ctx, fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret at %s: %w", path, err)
	}

	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no secret found at %s", path)
	}

	// KV v2 stores data under "data" key
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format at %s", path)
	}

	return data, nil
}

// Health checks Vault server health
func (c *Client) Health(ctx context.Context) error {
	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}

	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}

	return nil
}

// Close stops token renewal
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.stop)
		c.log.Info("vault client closed")
	})
	return nil
}
