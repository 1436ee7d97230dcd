package db

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/isoqms/qms/internal/config"
	"github.com/isoqms/qms/internal/models"
	"github.com/isoqms/qms/internal/retry"
	"github.com/isoqms/qms/internal/router"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.DatabaseConfig
		want string
	}{
		{
			name: "explicit dsn wins",
			cfg:  config.DatabaseConfig{Driver: config.DriverPostgres, DSN: "postgres://u@h/db", Host: "ignored"},
			want: "postgres://u@h/db",
		},
		{
			name: "postgres parts",
			cfg: config.DatabaseConfig{
				Driver: config.DriverPostgres, Host: "db.internal", Port: 5432,
				User: "qaqc", Password: "pw", Name: "tracking", SSLMode: "require", Schema: "appQAQC",
				Pool: config.PoolConfig{ConnectTimeout: 15 * time.Second},
			},
			want: `host=db.internal port=5432 user=qaqc password=pw dbname=tracking sslmode=require search_path='"appQAQC",public' connect_timeout=15`,
		},
		{
			name: "postgres without schema",
			cfg: config.DatabaseConfig{
				Driver: config.DriverPostgres, Host: "h", Port: 5433, User: "u", Password: "p", Name: "n", SSLMode: "disable",
			},
			want: "host=h port=5433 user=u password=p dbname=n sslmode=disable",
		},
		{
			name: "mysql parts",
			cfg: config.DatabaseConfig{
				Driver: config.DriverMySQL, Host: "10.0.0.5", Port: 3306, User: "root", Password: "pw", Name: "qms",
				Pool: config.PoolConfig{ConnectTimeout: 5 * time.Second},
			},
			want: "root:pw@tcp(10.0.0.5:3306)/qms?parseTime=true&timeout=5s",
		},
		{
			name: "sqlite file",
			cfg:  config.DatabaseConfig{Driver: config.DriverSQLite, Path: "qms.db"},
			want: "qms.db?_busy_timeout=5000&_journal_mode=WAL",
		},
		{
			name: "sqlite memory",
			cfg:  config.DatabaseConfig{Driver: config.DriverSQLite, Path: ":memory:"},
			want: ":memory:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DSN(tt.cfg); got != tt.want {
				t.Errorf("DSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDSN_MySQLParseTimeFlag(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Driver: config.DriverMySQL, Host: "localhost", Port: 3306, Name: "test"})
	if !strings.Contains(dsn, "parseTime=true") {
		t.Errorf("DSN missing parseTime=true: %s", dsn)
	}
}

func TestDialector(t *testing.T) {
	tests := []struct {
		driver string
		want   string
	}{
		{config.DriverPostgres, "postgres"},
		{config.DriverMySQL, "mysql"},
		{config.DriverSQLite, "sqlite"},
		{"", "sqlite"},
	}
	for _, tt := range tests {
		d, err := Dialector(config.DatabaseConfig{Driver: tt.driver, Path: ":memory:"})
		if err != nil {
			t.Fatalf("Dialector(%q): %v", tt.driver, err)
		}
		if d.Name() != tt.want {
			t.Errorf("Dialector(%q).Name() = %q, want %q", tt.driver, d.Name(), tt.want)
		}
	}

	if _, err := Dialector(config.DatabaseConfig{Driver: "oracle"}); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestOpen_MemoryPinsSingleConnection(t *testing.T) {
	gdb, err := Open(config.DatabaseConfig{
		Driver: config.DriverSQLite,
		Path:   ":memory:",
		Pool:   config.PoolConfig{MaxOpen: 20, MaxIdle: 5},
	}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sqlDB, _ := gdb.DB()
	defer sqlDB.Close()
	if got := sqlDB.Stats().MaxOpenConnections; got != 1 {
		t.Errorf("MaxOpenConnections = %d, want 1", got)
	}
}

func TestPing(t *testing.T) {
	gdb := openMemory(t)
	if err := Ping(context.Background(), gdb, fastRetry(), time.Second); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestEnsureSchema_CreatesEverything(t *testing.T) {
	gdb := openMemory(t)
	report, err := NewSynchronizer(gdb, fastRetry(), zap.NewNop()).EnsureSchema(context.Background())
	if err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if failed := report.Failed(); len(failed) != 0 {
		t.Fatalf("failed tables: %+v", failed)
	}

	m := gdb.Migrator()
	for _, model := range SharedModels() {
		if !m.HasTable(model) {
			t.Errorf("shared table for %T missing", model)
		}
	}
	if len(report.Forms) != len(router.Tables()) {
		t.Fatalf("form reports = %d, want %d", len(report.Forms), len(router.Tables()))
	}
	for _, route := range router.Tables() {
		if !m.HasTable(route.Table) {
			t.Errorf("form table %s missing", route.Table)
			continue
		}
		model := router.RowModel(route.Family)
		for _, tr := range report.Forms {
			if tr.Table == route.Table && !tr.Created {
				t.Errorf("%s: Created = false on first run", route.Table)
			}
		}
		for _, col := range append(append([]string{}, router.CommonColumns...), familyColumnsFor(route.Family)...) {
			if !gdb.Table(route.Table).Migrator().HasColumn(model, col) {
				t.Errorf("%s: column %s missing", route.Table, col)
			}
		}
	}
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	gdb := openMemory(t)
	s := NewSynchronizer(gdb, fastRetry(), zap.NewNop())
	if _, err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("first EnsureSchema: %v", err)
	}
	report, err := s.EnsureSchema(context.Background())
	if err != nil {
		t.Fatalf("second EnsureSchema: %v", err)
	}
	for _, tr := range report.Forms {
		if tr.Created || len(tr.Added) > 0 || tr.Err != nil {
			t.Errorf("%s: second run changed schema: %+v", tr.Table, tr)
		}
		if tr.FromVersion != 4 || tr.ToVersion != 4 {
			t.Errorf("%s: version %d -> %d, want 4 -> 4", tr.Table, tr.FromVersion, tr.ToVersion)
		}
	}
}

func TestEnsureSchema_AddsMissingColumnsToExistingTable(t *testing.T) {
	gdb := openMemory(t)
	// a legacy table that predates most columns, with one column already present
	if err := gdb.Exec("CREATE TABLE forms_site (id TEXT PRIMARY KEY, created_at DATETIME, updated_at DATETIME, location TEXT)").Error; err != nil {
		t.Fatalf("create legacy table: %v", err)
	}
	if err := gdb.Exec("INSERT INTO forms_site (id, location) VALUES ('S-1', 'Block A')").Error; err != nil {
		t.Fatalf("seed legacy row: %v", err)
	}

	report, err := NewSynchronizer(gdb, fastRetry(), zap.NewNop()).EnsureSchema(context.Background())
	if err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	var site TableReport
	for _, tr := range report.Forms {
		if tr.Table == router.TableSite {
			site = tr
		}
	}
	if site.Created {
		t.Error("existing table reported as created")
	}
	if site.Err != nil {
		t.Fatalf("site table error: %v", site.Err)
	}
	for _, col := range site.Added {
		if col == "location" {
			t.Error("location re-added to a table that already had it")
		}
	}
	if !gdb.Table(router.TableSite).Migrator().HasColumn(&models.SiteForm{}, "priority") {
		t.Error("priority column not added")
	}

	var location string
	if err := gdb.Raw("SELECT location FROM forms_site WHERE id = 'S-1'").Scan(&location).Error; err != nil {
		t.Fatalf("read legacy row: %v", err)
	}
	if location != "Block A" {
		t.Errorf("legacy row location = %q, want %q", location, "Block A")
	}
}

func TestEnsureSchema_ToleratesConcurrentColumnAdd(t *testing.T) {
	gdb := openMemory(t)
	s := NewSynchronizer(gdb, fastRetry(), zap.NewNop())
	if _, err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	// roll the recorded version back as if another process added the
	// column between our existence check and our ALTER
	if err := gdb.Model(&models.SchemaVersion{}).Where("1 = 1").Update("version", 0).Error; err != nil {
		t.Fatalf("reset versions: %v", err)
	}
	added, err := s.addColumn(context.Background(), router.TablePQC, &models.ProductionForm{}, "workshop")
	if err != nil || added {
		t.Errorf("addColumn on existing column = (%v, %v), want (false, nil)", added, err)
	}

	report, err := s.EnsureSchema(context.Background())
	if err != nil {
		t.Fatalf("EnsureSchema after reset: %v", err)
	}
	if failed := report.Failed(); len(failed) != 0 {
		t.Errorf("failed tables after reset: %+v", failed)
	}
}

func TestEnsureSchema_OneTableFailureDoesNotStopOthers(t *testing.T) {
	gdb := openMemory(t)
	// a view occupies the name, so the table check says absent and CREATE fails
	if err := gdb.Exec("CREATE VIEW forms_fqc AS SELECT 1 AS id").Error; err != nil {
		t.Fatalf("create blocking view: %v", err)
	}

	core, logs := observer.New(zap.ErrorLevel)
	report, err := NewSynchronizer(gdb, fastRetry(), zap.New(core)).EnsureSchema(context.Background())
	if err != nil {
		t.Fatalf("EnsureSchema returned fatal error: %v", err)
	}

	failed := report.Failed()
	if len(failed) != 1 || failed[0].Table != router.TableFQC {
		t.Fatalf("failed = %+v, want only %s", failed, router.TableFQC)
	}
	if logs.Len() == 0 {
		t.Error("expected an error log for the failing table")
	}
	if !gdb.Table(router.TableSPR).Migrator().HasColumn(&models.ProductionForm{}, "workshop") {
		t.Error("table after the failing one was not synchronized")
	}
}

func TestEnsureSchema_BaselineFailureIsFatal(t *testing.T) {
	gdb := openMemory(t)
	sqlDB, _ := gdb.DB()
	sqlDB.Close()

	_, err := NewSynchronizer(gdb, fastRetry(), zap.NewNop()).EnsureSchema(context.Background())
	if err == nil || !strings.Contains(err.Error(), "baseline connection") {
		t.Errorf("err = %v, want baseline connection error", err)
	}
}

func TestNilRetryUsesDefaultPolicy(t *testing.T) {
	gdb := openMemory(t)

	if err := Ping(context.Background(), gdb, nil, time.Second); err != nil {
		t.Fatalf("Ping with nil executor: %v", err)
	}

	s := NewSynchronizer(gdb, nil, nil)
	if s.Retry == nil {
		t.Fatal("Retry is nil")
	}
	if got := s.Retry.Options().MaxRetries; got != retry.DefaultMaxRetries {
		t.Errorf("MaxRetries = %d, want %d", got, retry.DefaultMaxRetries)
	}
	report, err := s.EnsureSchema(context.Background())
	if err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if failed := report.Failed(); len(failed) > 0 {
		t.Errorf("failed tables: %+v", failed)
	}
}

func openMemory(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := Open(config.DatabaseConfig{Driver: config.DriverSQLite, Path: ":memory:"}, nil)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return gdb
}

func fastRetry() *retry.Executor {
	return retry.New(retry.Options{MaxRetries: 1, InitialDelay: time.Millisecond}, nil)
}

func familyColumnsFor(f router.Family) []string {
	switch f {
	case router.FamilyMaterial:
		return router.MaterialColumns
	case router.FamilySite:
		return router.SiteColumns
	default:
		return router.ProductionColumns
	}
}
