package renkei

import (
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"Defaults", func(c *Config) {}, ""},
		{"MissingHost", func(c *Config) { c.Device.Host = "" }, "device.host"},
		{"PortTooLow", func(c *Config) { c.Device.Port = 0 }, "device.port"},
		{"PortTooHigh", func(c *Config) { c.Device.Port = 70000 }, "device.port"},
		{"ReconnectTooLow", func(c *Config) { c.Connection.ReconnectInterval = 0 }, "reconnect_interval"},
		{"ReconnectTooHigh", func(c *Config) { c.Connection.ReconnectInterval = 3601 }, "reconnect_interval"},
		{"HealthDisabled", func(c *Config) { c.Connection.HealthCheckInterval = 0 }, ""},
		{"HealthTooLow", func(c *Config) { c.Connection.HealthCheckInterval = 3 }, "health_check_interval"},
		{"HealthValid", func(c *Config) { c.Connection.HealthCheckInterval = 60 }, ""},
		{"StabilisationNegative", func(c *Config) { c.Connection.StabilisationDelay = -1 }, "stabilisation_delay"},
		{"StabilisationTooHigh", func(c *Config) { c.Connection.StabilisationDelay = 31 }, "stabilisation_delay"},
		{"ResponseTooLow", func(c *Config) { c.Connection.ResponseTimeout = 0 }, "response_timeout"},
		{"ResponseTooHigh", func(c *Config) { c.Connection.ResponseTimeout = 121 }, "response_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewDefaultConfig()
			tt.mutate(config)

			err := config.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected valid config, got error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error to name %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfigAddress(t *testing.T) {
	config, err := NewConfig("10.0.0.5", 0)
	if err != nil {
		t.Fatalf("Expected valid config, got error: %v", err)
	}
	if config.Address() != "10.0.0.5:17002" {
		t.Errorf("Expected default port in address, got %s", config.Address())
	}

	config, err = NewConfig("10.0.0.5", 9000)
	if err != nil {
		t.Fatalf("Expected valid config, got error: %v", err)
	}
	if config.Address() != "10.0.0.5:9000" {
		t.Errorf("Expected explicit port in address, got %s", config.Address())
	}
}

func TestConfigDurations(t *testing.T) {
	config := NewDefaultConfig()
	config.Connection.ReconnectInterval = 15
	config.Connection.HealthCheckInterval = 60
	config.Connection.StabilisationDelay = 0.5
	config.Connection.ResponseTimeout = 10

	if config.ReconnectEvery() != 15*time.Second {
		t.Errorf("Expected 15s reconnect interval, got %s", config.ReconnectEvery())
	}
	if config.HealthCheckEvery() != time.Minute {
		t.Errorf("Expected 60s health interval, got %s", config.HealthCheckEvery())
	}
	if config.Stabilisation() != 500*time.Millisecond {
		t.Errorf("Expected 500ms stabilisation, got %s", config.Stabilisation())
	}
	if config.ResponseDeadline() != 10*time.Second {
		t.Errorf("Expected 10s response deadline, got %s", config.ResponseDeadline())
	}
}
