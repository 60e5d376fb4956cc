// Package config reads the global ~/.molva/config.toml and its
// environment overrides.
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the global client configuration.
type Config struct {
	DefaultSession string `toml:"default_session"`
	APIURL         string `toml:"api_url"`
	WSURL          string `toml:"ws_url"`
	APIToken       string `toml:"api_token"`
	Notifications  bool   `toml:"notifications"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	return &Config{
		DefaultSession: "main",
		APIURL:         "http://localhost:8080/api",
		WSURL:          "ws://localhost:8080/ws",
		Notifications:  true,
	}
}

// Load reads config from the given path. Returns an error if the file is
// missing; callers fall back to Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays MOLVA_* environment variables onto the config.
// Environment wins over file values.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("MOLVA_API_URL"); v != "" {
		c.APIURL = v
	}
	if v := os.Getenv("MOLVA_WS_URL"); v != "" {
		c.WSURL = v
	}
	if v := os.Getenv("MOLVA_API_TOKEN"); v != "" {
		c.APIToken = v
	}
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
