package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all terminal configuration
type Config struct {
	NodeEnv    string
	LogLevel   string
	TerminalID string
	Backend    BackendConfig
	Database   DatabaseConfig
	POS        POSConfig
	Server     ServerConfig
}

// BackendConfig describes the REST backend the terminal talks to
type BackendConfig struct {
	BaseURL        string
	Token          string
	RequestTimeout time.Duration
}

// DatabaseConfig holds local database configuration
type DatabaseConfig struct {
	Driver   string // sqlite | postgres
	Path     string // sqlite file
	Host     string
	Port     string
	Username string
	Password string
	Database string
	LogSQL   bool
}

// POSConfig holds checkout settings
type POSConfig struct {
	TaxRate  decimal.Decimal
	Currency string
}

// ServerConfig holds the local status server configuration
type ServerConfig struct {
	StatusPort string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	timeout, err := time.ParseDuration(getEnv("API_TIMEOUT", "10s"))
	if err != nil || timeout <= 0 {
		return nil, fmt.Errorf("invalid API_TIMEOUT %q", os.Getenv("API_TIMEOUT"))
	}

	taxRate, err := decimal.NewFromString(getEnv("TAX_RATE", "0.0875"))
	if err != nil || taxRate.IsNegative() || taxRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("invalid TAX_RATE %q", os.Getenv("TAX_RATE"))
	}

	driver := strings.ToLower(getEnv("DB_DRIVER", "sqlite"))
	if driver != "sqlite" && driver != "postgres" {
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}

	hostname, _ := os.Hostname()

	return &Config{
		NodeEnv:    getEnv("NODE_ENV", "development"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		TerminalID: getEnv("TERMINAL_ID", hostname),
		Backend: BackendConfig{
			BaseURL:        strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:5000/api"), "/"),
			Token:          os.Getenv("API_TOKEN"),
			RequestTimeout: timeout,
		},
		Database: DatabaseConfig{
			Driver:   driver,
			Path:     getEnv("DB_PATH", "./pos_data/pos.db"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			Username: getEnv("DB_USER", "postgres"),
			Password: os.Getenv("DB_PASSWORD"),
			Database: getEnv("DB_NAME", "eckpos"),
			LogSQL:   getEnv("DB_LOG_SQL", "false") == "true",
		},
		POS: POSConfig{
			TaxRate:  taxRate,
			Currency: getEnv("CURRENCY", "Rs"),
		},
		Server: ServerConfig{
			StatusPort: getEnv("STATUS_PORT", "3210"),
		},
	}, nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
