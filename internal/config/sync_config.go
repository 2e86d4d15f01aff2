package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SyncConfig holds synchronization configuration
type SyncConfig struct {
	// ============ SCHEDULING ============
	AutoSyncEnabled     bool `mapstructure:"auto_sync_enabled" json:"auto_sync_enabled"`
	AutoSyncInterval    int  `mapstructure:"auto_sync_interval" json:"auto_sync_interval"` // seconds
	SyncOnStartup       bool `mapstructure:"sync_on_startup" json:"sync_on_startup"`
	HealthCheckInterval int  `mapstructure:"health_check_interval" json:"health_check_interval"` // seconds

	// ============ LIMITS ============
	MaxRetries  int     `mapstructure:"max_retries" json:"max_retries"`
	ReplayRate  float64 `mapstructure:"replay_rate" json:"replay_rate"` // requests per second
	ReplayBurst int     `mapstructure:"replay_burst" json:"replay_burst"`
	PassTimeout int     `mapstructure:"pass_timeout" json:"pass_timeout"` // seconds
}

var syncDefaults = map[string]interface{}{
	"auto_sync_enabled":     true,
	"auto_sync_interval":    300,
	"sync_on_startup":       true,
	"health_check_interval": 30,
	"max_retries":           3,
	"replay_rate":           5.0,
	"replay_burst":          5,
	"pass_timeout":          120,
}

// LoadSyncConfig loads sync configuration from defaults, an optional file
// at SYNC_CONFIG_PATH and SYNC_* environment overrides, in that order.
func LoadSyncConfig() (*SyncConfig, error) {
	v := viper.New()
	for key, value := range syncDefaults {
		v.SetDefault(key, value)
	}

	if configPath := os.Getenv("SYNC_CONFIG_PATH"); configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read sync config %s: %w", configPath, err)
		}
	}

	v.SetEnvPrefix("SYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg SyncConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode sync config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultSyncConfig returns the built-in defaults.
func DefaultSyncConfig() *SyncConfig {
	return &SyncConfig{
		AutoSyncEnabled:     true,
		AutoSyncInterval:    300,
		SyncOnStartup:       true,
		HealthCheckInterval: 30,
		MaxRetries:          3,
		ReplayRate:          5,
		ReplayBurst:         5,
		PassTimeout:         120,
	}
}

// Validate rejects settings the sync manager cannot run with
func (c *SyncConfig) Validate() error {
	switch {
	case c.AutoSyncInterval <= 0:
		return fmt.Errorf("auto_sync_interval must be positive, got %d", c.AutoSyncInterval)
	case c.HealthCheckInterval <= 0:
		return fmt.Errorf("health_check_interval must be positive, got %d", c.HealthCheckInterval)
	case c.MaxRetries <= 0:
		return fmt.Errorf("max_retries must be positive, got %d", c.MaxRetries)
	case c.ReplayRate <= 0:
		return fmt.Errorf("replay_rate must be positive, got %v", c.ReplayRate)
	case c.ReplayBurst <= 0:
		return fmt.Errorf("replay_burst must be positive, got %d", c.ReplayBurst)
	case c.PassTimeout <= 0:
		return fmt.Errorf("pass_timeout must be positive, got %d", c.PassTimeout)
	}
	return nil
}

func (c *SyncConfig) AutoSyncEvery() time.Duration {
	return time.Duration(c.AutoSyncInterval) * time.Second
}

func (c *SyncConfig) HealthCheckEvery() time.Duration {
	return time.Duration(c.HealthCheckInterval) * time.Second
}

func (c *SyncConfig) PassDeadline() time.Duration {
	return time.Duration(c.PassTimeout) * time.Second
}
