// Package config handles viewpoint configuration from YAML files.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level viewpoint configuration.
type Config struct {
	Browser BrowserConfig `yaml:"browser"`
	Server  ServerConfig  `yaml:"server"`
	Capture CaptureConfig `yaml:"capture"`
	Archive ArchiveConfig `yaml:"archive"`
	Pages   []PageConfig  `yaml:"pages"`
}

// BrowserConfig controls the Chrome connection.
type BrowserConfig struct {
	Remote  string `yaml:"remote"` // ws:// URL of an external Chrome; empty = launch locally
	Headful bool   `yaml:"headful"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// CaptureConfig holds capture defaults; per-request options override.
type CaptureConfig struct {
	MaxConcurrency  int           `yaml:"max_concurrency"`
	FanOutThreshold int           `yaml:"fan_out_threshold"`
	Deadline        time.Duration `yaml:"deadline"`
}

// ArchiveConfig controls the SQLite capture archive.
type ArchiveConfig struct {
	Path          string `yaml:"path"` // empty = archive disabled
	RetentionDays int    `yaml:"retention_days"`
	StoreOutlines bool   `yaml:"store_outlines"`
}

// PageConfig defines a page to open at startup.
type PageConfig struct {
	URL string `yaml:"url"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8086"
	}
	if c.Capture.MaxConcurrency <= 0 {
		c.Capture.MaxConcurrency = 50
	}
	if c.Capture.FanOutThreshold <= 0 {
		c.Capture.FanOutThreshold = 16
	}
	if c.Capture.Deadline <= 0 {
		c.Capture.Deadline = 30 * time.Second
	}
	if c.Archive.RetentionDays <= 0 {
		c.Archive.RetentionDays = 30
	}
}
