// Package config holds SDK and CLI configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel     string        `yaml:"log_level" default:"info"`
	ScanTimeout  time.Duration `yaml:"scan_timeout" default:"10s"`
	OutputFormat string        `yaml:"output_format" default:"table"` // table, json
	NamePrefix   string        `yaml:"name_prefix"`
	ReadBattery  bool          `yaml:"read_battery" default:"true"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML config file over the defaults. A missing path is not an
// error; the defaults apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// UnmarshalYAML decodes the file representation, where durations are strings
// like "10s". Fields absent from the file keep their current values.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig struct {
		LogLevel     *string `yaml:"log_level"`
		ScanTimeout  *string `yaml:"scan_timeout"`
		OutputFormat *string `yaml:"output_format"`
		NamePrefix   *string `yaml:"name_prefix"`
		ReadBattery  *bool   `yaml:"read_battery"`
	}

	var raw rawConfig
	if err := node.Decode(&raw); err != nil {
		return err
	}

	if raw.LogLevel != nil {
		c.LogLevel = *raw.LogLevel
	}
	if raw.ScanTimeout != nil {
		d, err := time.ParseDuration(*raw.ScanTimeout)
		if err != nil {
			return fmt.Errorf("scan_timeout: %w", err)
		}
		c.ScanTimeout = d
	}
	if raw.OutputFormat != nil {
		c.OutputFormat = *raw.OutputFormat
	}
	if raw.NamePrefix != nil {
		c.NamePrefix = *raw.NamePrefix
	}
	if raw.ReadBattery != nil {
		c.ReadBattery = *raw.ReadBattery
	}
	return nil
}

// Validate checks the fields an operator can get wrong in a config file.
func (c *Config) Validate() error {
	switch c.OutputFormat {
	case "table", "json":
	default:
		return fmt.Errorf("unknown output format %q (want table or json)", c.OutputFormat)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	if c.ScanTimeout <= 0 {
		return fmt.Errorf("scan_timeout must be positive, got %s", c.ScanTimeout)
	}
	return nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
