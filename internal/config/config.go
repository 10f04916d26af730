package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main toolrun configuration
type Config struct {
	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Cache
	Cache CacheConfig `json:"cache" mapstructure:"cache"`

	// Engine
	Engine EngineConfig `json:"engine" mapstructure:"engine"`

	// Monitor
	Monitor MonitorConfig `json:"monitor" mapstructure:"monitor"`

	// Plugins
	Plugins PluginsConfig `json:"plugins" mapstructure:"plugins"`

	// Metrics endpoint
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	File    string `json:"file" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
}

// CacheConfig holds cache manager configuration
type CacheConfig struct {
	MaxEntries           int                `json:"max_entries" mapstructure:"max_entries"`
	MemoryTTLSeconds     int                `json:"memory_ttl_seconds" mapstructure:"memory_ttl_seconds"`
	SweepIntervalSeconds int                `json:"sweep_interval_seconds" mapstructure:"sweep_interval_seconds"`
	Durable              DurableCacheConfig `json:"durable" mapstructure:"durable"`
}

// DurableCacheConfig holds the durable tier settings
type DurableCacheConfig struct {
	Enabled    bool   `json:"enabled" mapstructure:"enabled"`
	Path       string `json:"path" mapstructure:"path"`
	TTLSeconds int    `json:"ttl_seconds" mapstructure:"ttl_seconds"`
}

// EngineConfig holds execution engine configuration
type EngineConfig struct {
	DefaultTimeoutSeconds int          `json:"default_timeout_seconds" mapstructure:"default_timeout_seconds"`
	MaxRecords            int          `json:"max_records" mapstructure:"max_records"`
	Coalesce              bool         `json:"coalesce" mapstructure:"coalesce"`
	Policy                PolicyConfig `json:"policy" mapstructure:"policy"`
}

// PolicyConfig defines tool access policies
type PolicyConfig struct {
	Enabled bool     `json:"enabled" mapstructure:"enabled"`
	Allow   []string `json:"allow" mapstructure:"allow"`
	Deny    []string `json:"deny" mapstructure:"deny"`
}

// MonitorConfig holds performance monitor configuration
type MonitorConfig struct {
	MaxResponseTimeMs     int     `json:"max_response_time_ms" mapstructure:"max_response_time_ms"`
	MaxErrorRate          float64 `json:"max_error_rate" mapstructure:"max_error_rate"`
	MaxMemoryMB           float64 `json:"max_memory_mb" mapstructure:"max_memory_mb"`
	MaxSamples            int     `json:"max_samples" mapstructure:"max_samples"`
	SampleIntervalSeconds int     `json:"sample_interval_seconds" mapstructure:"sample_interval_seconds"`
}

// PluginsConfig holds plugin discovery configuration
type PluginsConfig struct {
	Dir   string `json:"dir" mapstructure:"dir"`
	Watch bool   `json:"watch" mapstructure:"watch"`
}

// MetricsConfig holds the Prometheus endpoint configuration
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Host    string `json:"host" mapstructure:"host"`
	Port    int    `json:"port" mapstructure:"port"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Pretty:  true,
		},
		Cache: CacheConfig{
			MaxEntries:           256,
			MemoryTTLSeconds:     300,
			SweepIntervalSeconds: 60,
			Durable: DurableCacheConfig{
				Enabled:    false,
				TTLSeconds: 3600,
			},
		},
		Engine: EngineConfig{
			DefaultTimeoutSeconds: 30,
			MaxRecords:            256,
			Coalesce:              true,
			Policy: PolicyConfig{
				Enabled: false,
				Allow:   []string{"*"},
				Deny:    []string{},
			},
		},
		Monitor: MonitorConfig{
			MaxResponseTimeMs:     5000,
			MaxErrorRate:          0.25,
			MaxMemoryMB:           512,
			MaxSamples:            120,
			SampleIntervalSeconds: 30,
		},
		Plugins: PluginsConfig{
			Watch: false,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    9190,
		},
		DataDir: "",
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache.max_entries must be positive")
	}
	if c.Cache.MemoryTTLSeconds <= 0 {
		return fmt.Errorf("cache.memory_ttl_seconds must be positive")
	}
	if c.Cache.Durable.Enabled && c.Cache.Durable.Path == "" {
		return fmt.Errorf("cache.durable.path is required when the durable tier is enabled")
	}
	if c.Engine.DefaultTimeoutSeconds <= 0 {
		return fmt.Errorf("engine.default_timeout_seconds must be positive")
	}
	if c.Engine.MaxRecords <= 0 {
		return fmt.Errorf("engine.max_records must be positive")
	}
	if c.Monitor.MaxErrorRate < 0 || c.Monitor.MaxErrorRate > 1 {
		return fmt.Errorf("monitor.max_error_rate must be between 0 and 1")
	}
	if c.Plugins.Watch && c.Plugins.Dir == "" {
		return fmt.Errorf("plugins.dir is required when plugins.watch is enabled")
	}
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port must be a valid port")
	}
	return nil
}
