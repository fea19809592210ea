package secrets

import (
	"context"
)

// Manager defines interface for secrets management
type Manager interface {
	// GetDatabaseCredentials retrieves database connection credentials
	GetDatabaseCredentials(ctx context.Context) (*DatabaseCredentials, error)

	// GetRedisCredentials retrieves Redis connection credentials
	GetRedisCredentials(ctx context.Context) (*RedisCredentials, error)

	// Health checks secrets manager health
	Health(ctx context.Context) error

	// Close performs cleanup
	Close() error
}

// DatabaseCredentials holds database connection information
type DatabaseCredentials struct {
	Host     string
	Port     int
	Username string
	Password string
	Database string
	SSLMode  string
}

// RedisCredentials holds Redis connection information
type RedisCredentials struct {
	Host     string
	Port     int
	Password string
	DB       int
	UseTLS   bool
}
