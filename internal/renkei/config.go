// Copyright 2025 Arion Yau
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package renkei

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the client configuration structure
type Config struct {
	Device     DeviceConfig     `yaml:"device"`
	Connection ConnectionConfig `yaml:"connection"`
}

// DeviceConfig identifies the motor controller on the network
type DeviceConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ConnectionConfig contains connection lifecycle tuning. Intervals are in
// seconds; the stabilisation delay accepts fractions.
type ConnectionConfig struct {
	ReconnectInterval   int     `yaml:"reconnect_interval"`
	HealthCheckInterval int     `yaml:"health_check_interval"` // 0 = disabled
	StabilisationDelay  float64 `yaml:"stabilisation_delay"`
	ResponseTimeout     int     `yaml:"response_timeout"`
}

// LoadConfig loads configuration from a YAML file. Connection settings the
// file leaves out keep their defaults; the device address is required.
func LoadConfig(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{Connection: NewDefaultConfig().Connection}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Device.Host == "" {
		return fmt.Errorf("device.host is required")
	}
	if c.Device.Port < 1 || c.Device.Port > 65535 {
		return fmt.Errorf("device.port must be 1-65535, got %d", c.Device.Port)
	}

	conn := c.Connection
	if conn.ReconnectInterval < 1 || conn.ReconnectInterval > 3600 {
		return fmt.Errorf("connection.reconnect_interval must be 1-3600 seconds, got %d", conn.ReconnectInterval)
	}
	if conn.HealthCheckInterval != 0 && (conn.HealthCheckInterval < 5 || conn.HealthCheckInterval > 86400) {
		return fmt.Errorf("connection.health_check_interval must be 0 (disabled) or 5-86400 seconds, got %d", conn.HealthCheckInterval)
	}
	if conn.StabilisationDelay < 0 || conn.StabilisationDelay > 30 {
		return fmt.Errorf("connection.stabilisation_delay must be 0-30 seconds, got %v", conn.StabilisationDelay)
	}
	if conn.ResponseTimeout < 1 || conn.ResponseTimeout > 120 {
		return fmt.Errorf("connection.response_timeout must be 1-120 seconds, got %d", conn.ResponseTimeout)
	}

	return nil
}

// Address returns the controller's host:port dial target
func (c *Config) Address() string {
	return net.JoinHostPort(c.Device.Host, strconv.Itoa(c.Device.Port))
}

// ReconnectEvery returns the fixed reconnect retry interval
func (c *Config) ReconnectEvery() time.Duration {
	return time.Duration(c.Connection.ReconnectInterval) * time.Second
}

// HealthCheckEvery returns the health probe interval, zero when disabled
func (c *Config) HealthCheckEvery() time.Duration {
	return time.Duration(c.Connection.HealthCheckInterval) * time.Second
}

// Stabilisation returns the post-connect motor warm-up delay
func (c *Config) Stabilisation() time.Duration {
	return time.Duration(c.Connection.StabilisationDelay * float64(time.Second))
}

// ResponseDeadline returns the per-command reply timeout
func (c *Config) ResponseDeadline() time.Duration {
	return time.Duration(c.Connection.ResponseTimeout) * time.Second
}

// Save saves the configuration to a YAML file
func (c *Config) Save(filepath string) error {
	return SaveConfig(c, filepath)
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(config *Config, filepath string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filepath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// NewDefaultConfig creates a default configuration template
func NewDefaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Host: "192.168.1.100",
			Port: DefaultPort,
		},
		Connection: ConnectionConfig{
			ReconnectInterval:   10,
			HealthCheckInterval: 0,
			StabilisationDelay:  0.5,
			ResponseTimeout:     10,
		},
	}
}

// NewConfig builds a validated configuration for a host, using defaults for
// everything else. Port 0 selects the controller default.
func NewConfig(host string, port int) (*Config, error) {
	config := NewDefaultConfig()
	config.Device.Host = host
	if port != 0 {
		config.Device.Port = port
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
