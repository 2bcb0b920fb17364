// Package config provides configuration management for the PubSub server.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the server configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Transports TransportsConfig `yaml:"transports"`
	Storage    StorageConfig    `yaml:"storage"`
}

// ServerConfig contains host-level settings.
type ServerConfig struct {
	Name         string `yaml:"name"`
	EnableMirror bool   `yaml:"enable_mirror"`
}

// TransportsConfig selects which transport layers are registered at startup.
type TransportsConfig struct {
	UDP      bool `yaml:"udp"`
	MQTTUADP bool `yaml:"mqtt_uadp"`
	MQTTJSON bool `yaml:"mqtt_json"`
}

// StorageConfig contains configuration-store settings.
type StorageConfig struct {
	Path    string `yaml:"path"`
	Restore bool   `yaml:"restore"`
}

// Default returns a default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Server: ServerConfig{
			Name:         "uapubsub",
			EnableMirror: true,
		},
		Transports: TransportsConfig{
			UDP:      true,
			MQTTUADP: true,
			MQTTJSON: true,
		},
		Storage: StorageConfig{
			Path:    filepath.Join(homeDir, ".uapubsub", "data"),
			Restore: true,
		},
	}
}

// DefaultPath returns the default configuration file path.
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".uapubsub", "config.yaml")
}

// Load loads the configuration from a file. A missing file yields the default
// configuration.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to a file, creating the directory if needed.
func (c *Config) Save(path string) error {
	if path == "" {
		path = DefaultPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
