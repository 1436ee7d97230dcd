// Package config provides YAML-based configuration loading for the QMS store.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
)

// Config is the top-level configuration, loaded from qms.yaml.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Retry    RetryConfig    `yaml:"retry"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig selects and addresses the backing store.
type DatabaseConfig struct {
	Driver   string     `yaml:"driver"`
	DSN      string     `yaml:"dsn"`
	Host     string     `yaml:"host"`
	Port     int        `yaml:"port"`
	Name     string     `yaml:"name"`
	User     string     `yaml:"user"`
	Password string     `yaml:"password"`
	SSLMode  string     `yaml:"sslmode"`
	Schema   string     `yaml:"schema"`
	Path     string     `yaml:"path"`
	Pool     PoolConfig `yaml:"pool"`
}

// PoolConfig tunes the connection pool.
type PoolConfig struct {
	MaxOpen         int           `yaml:"max_open"`
	MaxIdle         int           `yaml:"max_idle"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
}

// RetryConfig is the transient-error retry policy. MaxRetries 0 takes the
// default and -1 disables retries.
type RetryConfig struct {
	MaxRetries   int           `yaml:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	Factor       float64       `yaml:"factor"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	d := &c.Database
	d.Driver = strings.ToLower(strings.TrimSpace(d.Driver))
	if d.Driver == "" {
		d.Driver = DriverSQLite
	}
	switch d.Driver {
	case DriverPostgres:
		if d.Host == "" {
			d.Host = "127.0.0.1"
		}
		if d.Port == 0 {
			d.Port = 5432
		}
		if d.SSLMode == "" {
			d.SSLMode = "require"
		}
		if d.Schema == "" {
			d.Schema = "appQAQC"
		}
	case DriverMySQL:
		if d.Host == "" {
			d.Host = "127.0.0.1"
		}
		if d.Port == 0 {
			d.Port = 3306
		}
	case DriverSQLite:
		if d.Path == "" && d.DSN == "" {
			d.Path = "qms.db"
		}
	}

	p := &d.Pool
	if p.MaxOpen == 0 {
		p.MaxOpen = 20
	}
	if p.MaxIdle == 0 {
		p.MaxIdle = 5
	}
	if p.ConnMaxIdleTime == 0 {
		p.ConnMaxIdleTime = 30 * time.Second
	}
	if p.ConnMaxLifetime == 0 {
		p.ConnMaxLifetime = 30 * time.Minute
	}
	if p.ConnectTimeout == 0 {
		p.ConnectTimeout = 15 * time.Second
	}

	if c.Retry.MaxRetries == 0 {
		c.Retry.MaxRetries = 3
	}
	if c.Retry.InitialDelay == 0 {
		c.Retry.InitialDelay = 200 * time.Millisecond
	}
	if c.Retry.Factor == 0 {
		c.Retry.Factor = 2
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	d := c.Database
	switch d.Driver {
	case DriverPostgres, DriverMySQL:
		if d.DSN == "" {
			if d.Name == "" {
				errs = append(errs, "database.name is required")
			}
			if d.User == "" {
				errs = append(errs, "database.user is required")
			}
		}
	case DriverSQLite:
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported (postgres, sqlite, mysql)", d.Driver))
	}
	if d.Pool.MaxIdle > d.Pool.MaxOpen {
		errs = append(errs, "database.pool.max_idle must not exceed max_open")
	}
	if c.Retry.MaxRetries < -1 {
		errs = append(errs, "retry.max_retries must be -1 (disabled) or more")
	}
	if c.Retry.Factor < 1 {
		errs = append(errs, "retry.factor must be at least 1")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q is not one of json, console", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
