package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Admin    AdminConfig
	Roster   RosterConfig
}

// ServerConfig holds the server configuration
type ServerConfig struct {
	Port     int    `env:"SERVER_PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	Release  bool   `env:"GIN_RELEASE" envDefault:"false"`
}

// DatabaseConfig holds the database configuration
type DatabaseConfig struct {
	Store      string `env:"STORE" envDefault:"postgres"` // "postgres" or "memory"
	Host       string `env:"DB_HOST" envDefault:"localhost"`
	Port       int    `env:"DB_PORT" envDefault:"5432"`
	Username   string `env:"DB_USERNAME" envDefault:"postgres"`
	Password   string `env:"DB_PASSWORD" envDefault:"password"`
	DBName     string `env:"DB_NAME" envDefault:"leaveroster"`
	SSLMode    string `env:"DB_SSLMODE" envDefault:"disable"`
	TestDBName string `env:"TEST_DB_NAME" envDefault:"leaveroster_test"` // Separate database for testing
}

// AdminConfig holds the shared-secret configuration
type AdminConfig struct {
	// BootstrapKey, when set, is stored as the admin key at startup
	BootstrapKey string `env:"ADMIN_KEY"`
}

// RosterConfig holds the leave scheduling configuration
type RosterConfig struct {
	Locale      string `env:"DEFAULT_LOCALE" envDefault:"en"`
	WriteFanOut int    `env:"WRITE_FAN_OUT" envDefault:"10"`
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.Password, c.DBName, c.SSLMode,
	)
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Database.Store != "postgres" && cfg.Database.Store != "memory" {
		return nil, fmt.Errorf("unsupported STORE %q", cfg.Database.Store)
	}
	if cfg.Roster.WriteFanOut < 1 {
		cfg.Roster.WriteFanOut = 1
	}
	return cfg, nil
}
