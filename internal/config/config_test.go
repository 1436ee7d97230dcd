package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const fullYAML = `
database:
  driver: postgres
  host: db.internal
  port: 5433
  name: tracking
  user: qaqc
  password: secret
  sslmode: disable
  schema: qaqc
  pool:
    max_open: 40
    max_idle: 10
    conn_max_idle_time: 45s
    connect_timeout: 5s

retry:
  max_retries: 5
  initial_delay: 100ms
  factor: 3

log:
  level: debug
  format: console
`

const minimalYAML = `
database:
  driver: sqlite
`

func TestParse_FullConfig(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d := cfg.Database
	if d.Driver != DriverPostgres {
		t.Errorf("Driver = %q, want %q", d.Driver, DriverPostgres)
	}
	if d.Host != "db.internal" || d.Port != 5433 {
		t.Errorf("Host:Port = %s:%d, want db.internal:5433", d.Host, d.Port)
	}
	if d.Schema != "qaqc" {
		t.Errorf("Schema = %q, want %q", d.Schema, "qaqc")
	}
	if d.Pool.MaxOpen != 40 || d.Pool.MaxIdle != 10 {
		t.Errorf("Pool = %+v, want max_open 40 max_idle 10", d.Pool)
	}
	if d.Pool.ConnMaxIdleTime != 45*time.Second {
		t.Errorf("ConnMaxIdleTime = %v, want 45s", d.Pool.ConnMaxIdleTime)
	}
	if d.Pool.ConnectTimeout != 5*time.Second {
		t.Errorf("ConnectTimeout = %v, want 5s", d.Pool.ConnectTimeout)
	}
	if cfg.Retry.MaxRetries != 5 || cfg.Retry.InitialDelay != 100*time.Millisecond || cfg.Retry.Factor != 3 {
		t.Errorf("Retry = %+v, want 5/100ms/3", cfg.Retry)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "console" {
		t.Errorf("Log = %+v, want debug/console", cfg.Log)
	}
}

func TestParse_MinimalAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Database.Path != "qms.db" {
		t.Errorf("Path = %q, want %q", cfg.Database.Path, "qms.db")
	}
	p := cfg.Database.Pool
	if p.MaxOpen != 20 || p.MaxIdle != 5 {
		t.Errorf("Pool = %+v, want 20/5", p)
	}
	if p.ConnMaxIdleTime != 30*time.Second {
		t.Errorf("ConnMaxIdleTime = %v, want 30s", p.ConnMaxIdleTime)
	}
	if p.ConnectTimeout != 15*time.Second {
		t.Errorf("ConnectTimeout = %v, want 15s", p.ConnectTimeout)
	}
	if cfg.Retry.MaxRetries != 3 || cfg.Retry.InitialDelay != 200*time.Millisecond || cfg.Retry.Factor != 2 {
		t.Errorf("Retry = %+v, want 3/200ms/2", cfg.Retry)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v, want info/json", cfg.Log)
	}
}

func TestParse_EmptyDriverDefaultsToSQLite(t *testing.T) {
	cfg, err := Parse([]byte("log:\n  level: warn\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Driver != DriverSQLite {
		t.Errorf("Driver = %q, want %q", cfg.Database.Driver, DriverSQLite)
	}
}

func TestParse_PostgresDefaults(t *testing.T) {
	cfg, err := Parse([]byte("database:\n  driver: Postgres\n  name: tracking\n  user: qaqc\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d := cfg.Database
	if d.Driver != DriverPostgres {
		t.Errorf("Driver = %q, want lower-cased %q", d.Driver, DriverPostgres)
	}
	if d.Port != 5432 || d.SSLMode != "require" || d.Schema != "appQAQC" {
		t.Errorf("defaults = port %d sslmode %q schema %q", d.Port, d.SSLMode, d.Schema)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unsupported driver", "database:\n  driver: oracle\n", "not supported"},
		{"postgres missing name", "database:\n  driver: postgres\n  user: u\n", "database.name is required"},
		{"mysql missing user", "database:\n  driver: mysql\n  name: qms\n", "database.user is required"},
		{"idle exceeds open", "database:\n  pool:\n    max_open: 2\n    max_idle: 4\n", "max_idle must not exceed max_open"},
		{"bad level", "log:\n  level: loud\n", "log.level"},
		{"bad format", "log:\n  format: xml\n", "log.format"},
		{"factor below one", "retry:\n  factor: 0.5\n", "retry.factor"},
		{"retries below disabled", "retry:\n  max_retries: -2\n", "retry.max_retries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestParse_RetriesDisabled(t *testing.T) {
	cfg, err := Parse([]byte("retry:\n  max_retries: -1\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Retry.MaxRetries != -1 {
		t.Errorf("MaxRetries = %d, want -1 kept", cfg.Retry.MaxRetries)
	}
}

func TestParse_DSNSkipsPartsValidation(t *testing.T) {
	_, err := Parse([]byte("database:\n  driver: postgres\n  dsn: postgres://u:p@h/db\n"))
	if err != nil {
		t.Errorf("unexpected error with explicit DSN: %v", err)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("database: [unterminated"))
	if err == nil || !strings.Contains(err.Error(), "config: parse") {
		t.Errorf("error = %v, want parse error", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qms.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Driver != DriverSQLite {
		t.Errorf("Driver = %q, want %q", cfg.Database.Driver, DriverSQLite)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil || !strings.Contains(err.Error(), "config: read") {
		t.Errorf("error = %v, want read error", err)
	}
}
