package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Events   EventsConfig
}

// ServerConfig represents HTTP server configuration.
type ServerConfig struct {
	Host        string
	Port        int
	MetricsPort int // Port for the Prometheus metrics HTTP server
}

// CacheConfig represents access-decision cache configuration.
type CacheConfig struct {
	Enabled    bool
	Backend    string // "memory" or "redis"
	MaxEntries int
	TTLMinutes int
	RedisAddr  string
	RedisDB    int
}

// EventsConfig represents the event dispatcher configuration.
type EventsConfig struct {
	BufferSize int
}

// DatabaseConfig represents database configuration.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// findProjectRoot finds the project root directory by looking for go.mod.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		goModPath := filepath.Join(dir, "go.mod")
		if _, err := os.Stat(goModPath); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found in any parent directory")
		}
		dir = parent
	}
}

// InitConfig initializes viper configuration.
// env: environment name (dev, test, prod)
func InitConfig(env string) error {
	if env == "" {
		env = "dev"
	}

	projectRoot, err := findProjectRoot()
	if err != nil {
		return fmt.Errorf("failed to find project root: %w", err)
	}

	viper.SetConfigName(fmt.Sprintf(".env.%s", env))
	viper.SetConfigType("env")
	viper.AddConfigPath(projectRoot)

	// Config file is optional; environment variables take precedence.
	_ = viper.ReadInConfig()
	viper.AutomaticEnv()

	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_PORT", 8080)
	viper.SetDefault("METRICS_PORT", 9090)
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", 15432)
	viper.SetDefault("DB_USER", "tessera")
	viper.SetDefault("DB_NAME", "tessera_dev")
	viper.SetDefault("DB_SSLMODE", "disable")

	viper.SetDefault("CACHE_ENABLED", true)
	viper.SetDefault("CACHE_BACKEND", "memory")
	viper.SetDefault("CACHE_MAX_ENTRIES", 10000)
	viper.SetDefault("CACHE_TTL_MINUTES", 5)
	viper.SetDefault("CACHE_REDIS_ADDR", "localhost:6379")
	viper.SetDefault("CACHE_REDIS_DB", 0)

	viper.SetDefault("EVENTS_BUFFER_SIZE", 256)

	return nil
}

// Load loads configuration from viper.
func Load() (*Config, error) {
	// DB_PASSWORD is required for security
	dbPassword := viper.GetString("DB_PASSWORD")
	if dbPassword == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required (set via environment variable or .env file)")
	}

	config := &Config{
		Server: ServerConfig{
			Host:        viper.GetString("SERVER_HOST"),
			Port:        viper.GetInt("SERVER_PORT"),
			MetricsPort: viper.GetInt("METRICS_PORT"),
		},
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetInt("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: dbPassword,
			Database: viper.GetString("DB_NAME"),
			SSLMode:  viper.GetString("DB_SSLMODE"),
		},
		Cache: CacheConfig{
			Enabled:    viper.GetBool("CACHE_ENABLED"),
			Backend:    viper.GetString("CACHE_BACKEND"),
			MaxEntries: viper.GetInt("CACHE_MAX_ENTRIES"),
			TTLMinutes: viper.GetInt("CACHE_TTL_MINUTES"),
			RedisAddr:  viper.GetString("CACHE_REDIS_ADDR"),
			RedisDB:    viper.GetInt("CACHE_REDIS_DB"),
		},
		Events: EventsConfig{
			BufferSize: viper.GetInt("EVENTS_BUFFER_SIZE"),
		},
	}

	return config, nil
}

// ConnectionString returns the PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Database,
		c.SSLMode,
	)
}
