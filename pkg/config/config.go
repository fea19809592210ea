package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Database DatabaseConfig `mapstructure:"db"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Journal  JournalConfig  `mapstructure:"journal"`
	Vault    VaultConfig    `mapstructure:"vault"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	App      AppConfig      `mapstructure:"app"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig selects the key-value backend
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
	// ReserveUniqueValues writes reservation rows for subscription unique
	// attributes before the subscription itself
	ReserveUniqueValues bool `mapstructure:"reserve_unique_values"`
	// ReservationLease is how long a reservation whose subscription was never
	// written blocks other creators
	ReservationLease time.Duration `mapstructure:"reservation_lease"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// JournalConfig holds propagation journal configuration
type JournalConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Path          string        `mapstructure:"path"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	MaxFileSize   int64         `mapstructure:"max_file_size"`
}

// VaultConfig holds Vault-specific configuration
type VaultConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Address        string        `mapstructure:"addr"`
	Token          string        `mapstructure:"token"`
	UseKubernetes  bool          `mapstructure:"use_kubernetes"`
	KubernetesRole string        `mapstructure:"kubernetes_role"`
	KubernetesPath string        `mapstructure:"kubernetes_path"`
	TokenPath      string        `mapstructure:"token_path"`
	MountPath      string        `mapstructure:"mount_path"`
	SecretPath     string        `mapstructure:"secret_path"`
	RenewToken     bool          `mapstructure:"renew_token"`
	RenewInterval  time.Duration `mapstructure:"renew_interval"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
}

// MetricsConfig holds metrics collector configuration
type MetricsConfig struct {
	UpdateInterval time.Duration `mapstructure:"update_interval"`
}

// AppConfig holds application-level configuration
type AppConfig struct {
	Environment string `mapstructure:"env"`
	LogLevel    string `mapstructure:"log_level"`
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
}

// Load reads configuration from defaults, an optional config file and the
// environment. Environment keys are the config keys upper-cased with dots
// replaced by underscores, e.g. SERVER_PORT, STORE_BACKEND, DB_HOST.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("store.reserve_unique_values", false)
	v.SetDefault("store.reservation_lease", "5m")

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "postgres")
	v.SetDefault("db.name", "kube_provisioner")
	v.SetDefault("db.ssl_mode", "disable")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "5m")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "provisioner")

	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.path", "./data/journal")
	v.SetDefault("journal.batch_size", 64)
	v.SetDefault("journal.flush_interval", "1s")
	v.SetDefault("journal.max_file_size", 64*1024*1024)

	v.SetDefault("vault.enabled", false)
	v.SetDefault("vault.addr", "http://localhost:8200")
	v.SetDefault("vault.token", "")
	v.SetDefault("vault.use_kubernetes", false)
	v.SetDefault("vault.kubernetes_role", "kube-provisioner")
	v.SetDefault("vault.kubernetes_path", "kubernetes")
	v.SetDefault("vault.token_path", "/var/run/secrets/kubernetes.io/serviceaccount/token")
	v.SetDefault("vault.mount_path", "secret")
	v.SetDefault("vault.secret_path", "kube_provisioner")
	v.SetDefault("vault.renew_token", true)
	v.SetDefault("vault.renew_interval", "1h")
	v.SetDefault("vault.cache_ttl", "5m")

	v.SetDefault("metrics.update_interval", "15s")

	v.SetDefault("app.env", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.name", "kube_provisioner")
	v.SetDefault("app.version", "1.0.0")
}

// Validate checks values that cannot be defaulted
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendRedis, BackendPostgres:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}

	if c.Store.ReserveUniqueValues && c.Store.ReservationLease <= 0 {
		return fmt.Errorf("reservation lease must be positive when reservations are enabled")
	}

	if c.Journal.Enabled && c.Journal.Path == "" {
		return fmt.Errorf("journal path is required when the journal is enabled")
	}

	if c.IsProduction() {
		if c.Store.Backend == BackendMemory {
			return fmt.Errorf("memory store cannot be used in production")
		}
		if c.Store.Backend == BackendPostgres && c.Database.SSLMode == "disable" {
			return fmt.Errorf("SSL must be enabled for database in production")
		}
	}
	return nil
}

// IsProduction reports whether the app runs in production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ServerAddr returns the server address
func (c *ServerConfig) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
