package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config represents the catbridged configuration
type Config struct {
	Radio struct {
		Device           string `yaml:"device"`
		BaudRate         int    `yaml:"baud_rate"`
		PollIntervalMs   int    `yaml:"poll_interval_ms"`
		CommandTimeoutMs int    `yaml:"command_timeout_ms"`
	} `yaml:"radio"`

	Bridge struct {
		Port int `yaml:"port"`
	} `yaml:"bridge"`

	Engine struct {
		TickIntervalMs int `yaml:"tick_interval_ms"`
	} `yaml:"engine"`

	Web struct {
		Port        int    `yaml:"port"`
		BindAddress string `yaml:"bind_address"`
	} `yaml:"web"`

	Storage struct {
		DatabasePath string `yaml:"database_path"`
		MaxEvents    int    `yaml:"max_events"`
	} `yaml:"storage"`

	Logging struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSize    int    `yaml:"max_size"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAge     int    `yaml:"max_age"`
		Compress   bool   `yaml:"compress"`
		Console    bool   `yaml:"console"`
	} `yaml:"logging"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults
	if config.Radio.BaudRate == 0 {
		config.Radio.BaudRate = 9600
	}
	if config.Radio.PollIntervalMs == 0 {
		config.Radio.PollIntervalMs = 1000
	}
	if config.Radio.CommandTimeoutMs == 0 {
		config.Radio.CommandTimeoutMs = 500
	}
	if config.Bridge.Port == 0 {
		config.Bridge.Port = 7355
	}
	if config.Engine.TickIntervalMs == 0 {
		config.Engine.TickIntervalMs = 20
	}
	if config.Web.Port == 0 {
		config.Web.Port = 8080
	}
	if config.Web.BindAddress == "" {
		config.Web.BindAddress = "0.0.0.0"
	}
	if config.Storage.DatabasePath == "" {
		config.Storage.DatabasePath = "./catbridged.db"
	}
	if config.Storage.MaxEvents == 0 {
		config.Storage.MaxEvents = 10000
	}
	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.MaxSize == 0 {
		config.Logging.MaxSize = 10
	}
	if config.Logging.MaxBackups == 0 {
		config.Logging.MaxBackups = 3
	}
	if config.Logging.MaxAge == 0 {
		config.Logging.MaxAge = 28
	}

	return &config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Radio.Device == "" {
		return fmt.Errorf("radio device is required")
	}
	if c.Bridge.Port < 1 || c.Bridge.Port > 65535 {
		return fmt.Errorf("bridge port %d out of range", c.Bridge.Port)
	}
	if c.Web.Port < 1 || c.Web.Port > 65535 {
		return fmt.Errorf("web port %d out of range", c.Web.Port)
	}
	if c.Bridge.Port == c.Web.Port {
		return fmt.Errorf("bridge and web ports must differ")
	}
	return nil
}

// PollInterval returns the cache refresh interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Radio.PollIntervalMs) * time.Millisecond
}

// CommandTimeout returns the per-transaction deadline.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.Radio.CommandTimeoutMs) * time.Millisecond
}

// TickInterval returns the scheduler tick period.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Engine.TickIntervalMs) * time.Millisecond
}
