package secrets

import (
	"context"
	"fmt"
	"strconv"

	"github.com/victoralfred/kube_provisioner/pkg/logger"
)

// SecretReader reads one KV secret as a flat map
type SecretReader interface {
	GetSecret(ctx context.Context, path string) (map[string]interface{}, error)
	Health(ctx context.Context) error
	Close() error
}

// VaultManager implements Manager using HashiCorp Vault
type VaultManager struct {
	client SecretReader
	log    *logger.Logger
}

// NewVaultManager creates a new Vault-based secrets manager
func NewVaultManager(client SecretReader, log *logger.Logger) *VaultManager {
	return &VaultManager{
		client: client,
		log:    log,
	}
}

// GetDatabaseCredentials retrieves database credentials from Vault
func (v *VaultManager) GetDatabaseCredentials(ctx context.Context) (*DatabaseCredentials, error) {
	data, err := v.client.GetSecret(ctx, "database")
	if err != nil {
		return nil, fmt.Errorf("failed to get database credentials: %w", err)
	}

	port, err := getInt(data, "port", 5432)
	if err != nil {
		return nil, fmt.Errorf("invalid database port: %w", err)
	}

	creds := &DatabaseCredentials{
		Host:     getString(data, "host", "localhost"),
		Port:     port,
		Username: getString(data, "username", ""),
		Password: getString(data, "password", ""),
		Database: getString(data, "database", ""),
		SSLMode:  getString(data, "sslmode", "disable"),
	}

	if creds.Username == "" || creds.Password == "" {
		return nil, fmt.Errorf("invalid database credentials: username or password missing")
	}

	v.log.Debug("retrieved database credentials from vault")
	return creds, nil
}

// GetRedisCredentials retrieves Redis credentials from Vault
func (v *VaultManager) GetRedisCredentials(ctx context.Context) (*RedisCredentials, error) {
	data, err := v.client.GetSecret(ctx, "redis")
	if err != nil {
		return nil, fmt.Errorf("failed to get redis credentials: %w", err)
	}

	port, err := getInt(data, "port", 6379)
	if err != nil {
		return nil, fmt.Errorf("invalid redis port: %w", err)
	}
	db, err := getInt(data, "db", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid redis db: %w", err)
	}

	creds := &RedisCredentials{
		Host:     getString(data, "host", "localhost"),
		Port:     port,
		Password: getString(data, "password", ""),
		DB:       db,
		UseTLS:   getBool(data, "use_tls", false),
	}

	v.log.Debug("retrieved redis credentials from vault")
	return creds, nil
}

// Health checks Vault connection health
func (v *VaultManager) Health(ctx context.Context) error {
	return v.client.Health(ctx)
}

// Close performs cleanup
func (v *VaultManager) Close() error {
	return v.client.Close()
}

func getString(data map[string]interface{}, key, defaultValue string) string {
	if val, ok := data[key].(string); ok {
		return val
	}
	return defaultValue
}

func getBool(data map[string]interface{}, key string, defaultValue bool) bool {
	switch val := data[key].(type) {
	case bool:
		return val
	case string:
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultValue
}

// getInt accepts numbers as strings or JSON numbers
func getInt(data map[string]interface{}, key string, defaultValue int) (int, error) {
	switch val := data[key].(type) {
	case nil:
		return defaultValue, nil
	case string:
		return strconv.Atoi(val)
	case float64:
		return int(val), nil
	case int:
		return val, nil
	default:
		if n, ok := val.(interface{ Int64() (int64, error) }); ok {
			i, err := n.Int64()
			return int(i), err
		}
		return 0, fmt.Errorf("%s has unsupported type %T", key, val)
	}
}
