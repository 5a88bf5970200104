package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	tempDir := t.TempDir()

	t.Run("Valid Config", func(t *testing.T) {
		configContent := `
radio:
  device: "/dev/ttyUSB0"
  baud_rate: 38400
  poll_interval_ms: 2000
  command_timeout_ms: 250

bridge:
  port: 7355

web:
  port: 8080
  bind_address: "0.0.0.0"

storage:
  database_path: "/tmp/catbridged.db"
  max_events: 5000

logging:
  level: "debug"
  console: true
`
		configPath := writeConfig(t, tempDir, "valid.yaml", configContent)

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}

		if config.Radio.Device != "/dev/ttyUSB0" {
			t.Errorf("Expected device /dev/ttyUSB0, got %s", config.Radio.Device)
		}
		if config.Radio.BaudRate != 38400 {
			t.Errorf("Expected baud rate 38400, got %d", config.Radio.BaudRate)
		}
		if config.PollInterval() != 2*time.Second {
			t.Errorf("Expected 2s poll interval, got %v", config.PollInterval())
		}
		if config.CommandTimeout() != 250*time.Millisecond {
			t.Errorf("Expected 250ms command timeout, got %v", config.CommandTimeout())
		}
		if config.Bridge.Port != 7355 {
			t.Errorf("Expected bridge port 7355, got %d", config.Bridge.Port)
		}
		if config.Storage.MaxEvents != 5000 {
			t.Errorf("Expected max events 5000, got %d", config.Storage.MaxEvents)
		}
		if config.Logging.Level != "debug" {
			t.Errorf("Expected log level debug, got %s", config.Logging.Level)
		}
	})

	t.Run("Defaults Applied", func(t *testing.T) {
		configPath := writeConfig(t, tempDir, "minimal.yaml", `
radio:
  device: "/dev/ttyUSB0"
`)

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}

		if config.Radio.BaudRate != 9600 {
			t.Errorf("Expected default baud 9600, got %d", config.Radio.BaudRate)
		}
		if config.Radio.PollIntervalMs != 1000 {
			t.Errorf("Expected default poll interval 1000, got %d", config.Radio.PollIntervalMs)
		}
		if config.Radio.CommandTimeoutMs != 500 {
			t.Errorf("Expected default command timeout 500, got %d", config.Radio.CommandTimeoutMs)
		}
		if config.Bridge.Port != 7355 {
			t.Errorf("Expected default bridge port 7355, got %d", config.Bridge.Port)
		}
		if config.Engine.TickIntervalMs != 20 {
			t.Errorf("Expected default tick interval 20, got %d", config.Engine.TickIntervalMs)
		}
		if config.Web.Port != 8080 {
			t.Errorf("Expected default web port 8080, got %d", config.Web.Port)
		}
		if config.Web.BindAddress != "0.0.0.0" {
			t.Errorf("Expected default bind address 0.0.0.0, got %s", config.Web.BindAddress)
		}
		if config.Storage.DatabasePath != "./catbridged.db" {
			t.Errorf("Expected default database path, got %s", config.Storage.DatabasePath)
		}
		if config.Logging.Level != "info" {
			t.Errorf("Expected default log level info, got %s", config.Logging.Level)
		}
	})

	t.Run("Missing File", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(tempDir, "nope.yaml")); err == nil {
			t.Error("Expected error for missing file")
		}
	})

	t.Run("Invalid YAML", func(t *testing.T) {
		configPath := writeConfig(t, tempDir, "broken.yaml", "radio: [not a map")
		if _, err := LoadConfig(configPath); err == nil {
			t.Error("Expected error for invalid YAML")
		} else if !strings.Contains(err.Error(), "parse") {
			t.Errorf("Expected parse error, got: %v", err)
		}
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := &Config{}
		c.Radio.Device = "/dev/ttyUSB0"
		c.Bridge.Port = 7355
		c.Web.Port = 8080
		return c
	}

	t.Run("Valid", func(t *testing.T) {
		if err := valid().Validate(); err != nil {
			t.Errorf("Expected no error, got: %v", err)
		}
	})

	t.Run("Missing Device", func(t *testing.T) {
		c := valid()
		c.Radio.Device = ""
		if err := c.Validate(); err == nil {
			t.Error("Expected error for missing device")
		}
	})

	t.Run("Port Out Of Range", func(t *testing.T) {
		c := valid()
		c.Bridge.Port = 70000
		if err := c.Validate(); err == nil {
			t.Error("Expected error for out-of-range port")
		}
	})

	t.Run("Port Collision", func(t *testing.T) {
		c := valid()
		c.Web.Port = c.Bridge.Port
		if err := c.Validate(); err == nil {
			t.Error("Expected error for colliding ports")
		}
	})
}
