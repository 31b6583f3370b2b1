// Package config handles Watchtower configuration.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/quantumlife/watchtower/internal/core"
	"github.com/quantumlife/watchtower/internal/parallel"
)

// Config holds all configuration
type Config struct {
	// Paths
	DataDir string `json:"data_dir"`

	// Server
	Server ServerConfig `json:"server"`

	// Polling
	Poller PollerConfig `json:"poller"`

	// SMTP auto-reply delivery
	SMTP SMTPConfig `json:"smtp"`
}

// ServerConfig for HTTP server
type ServerConfig struct {
	Port int    `json:"port"`
	Host string `json:"host"`
}

// PollerConfig for the scheduled polling loop
type PollerConfig struct {
	IntervalSeconds int `json:"interval_seconds"`
	Concurrency     int `json:"concurrency"`
	ProcessedWindow int `json:"processed_window"`
}

// SMTPConfig for outbound auto-replies. The password never comes from the
// config file, only from the environment.
type SMTPConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username"`
	Password  string `json:"-"`
	FromEmail string `json:"from_email"`
	FromName  string `json:"from_name"`
}

// Default returns default configuration
func Default() *Config {
	home, _ := os.UserHomeDir()

	return &Config{
		DataDir: filepath.Join(home, ".watchtower"),
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Poller: PollerConfig{
			IntervalSeconds: 120,
			Concurrency:     parallel.DefaultConcurrency,
			ProcessedWindow: core.DefaultProcessedWindow,
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     587,
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			FromName: "Watchtower",
		},
	}
}

// Load loads config from file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = filepath.Join(cfg.DataDir, "config.json")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Use defaults
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Credentials always come from the environment.
	if pw := os.Getenv("SMTP_PASSWORD"); pw != "" {
		cfg.SMTP.Password = pw
	}

	if cfg.Poller.Concurrency <= 0 {
		cfg.Poller.Concurrency = parallel.DefaultConcurrency
	}
	if cfg.Poller.ProcessedWindow <= 0 {
		cfg.Poller.ProcessedWindow = core.DefaultProcessedWindow
	}

	return cfg, nil
}

// DatabasePath returns the SQLite file path inside the data dir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "watchtower.db")
}

// Save saves config to file
func (c *Config) Save(path string) error {
	if path == "" {
		path = filepath.Join(c.DataDir, "config.json")
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}
