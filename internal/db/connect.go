package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/isoqms/qms/internal/config"
	"github.com/isoqms/qms/internal/retry"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MemoryDSN is the SQLite DSN for a private in-memory database.
const MemoryDSN = ":memory:"

// DSN builds the driver-specific connection string. An explicit cfg.DSN wins.
func DSN(cfg config.DatabaseConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	switch cfg.Driver {
	case config.DriverPostgres:
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)
		if cfg.Schema != "" {
			dsn += fmt.Sprintf(` search_path='"%s",public'`, cfg.Schema)
		}
		if secs := int(cfg.Pool.ConnectTimeout / time.Second); secs > 0 {
			dsn += fmt.Sprintf(" connect_timeout=%d", secs)
		}
		return dsn
	case config.DriverMySQL:
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name)
		if cfg.Pool.ConnectTimeout > 0 {
			dsn += "&timeout=" + cfg.Pool.ConnectTimeout.String()
		}
		return dsn
	default:
		if cfg.Path == MemoryDSN {
			return MemoryDSN
		}
		return cfg.Path + "?_busy_timeout=5000&_journal_mode=WAL"
	}
}

// Dialector returns the GORM dialector for cfg.Driver.
func Dialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	dsn := DSN(cfg)
	switch cfg.Driver {
	case config.DriverPostgres:
		return postgres.Open(dsn), nil
	case config.DriverMySQL:
		return mysql.Open(dsn), nil
	case config.DriverSQLite, "":
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", cfg.Driver)
	}
}

// Open opens a GORM handle for cfg and applies the pool settings. It does not
// contact the server; use Ping for that.
func Open(cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}
	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger:               logger.Default.LogMode(logger.Silent),
		DisableAutomaticPing: true,
	})
	if err != nil {
		return nil, fmt.Errorf("db: open %s: %w", cfg.Driver, err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("db: get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.Pool.MaxOpen)
	sqlDB.SetMaxIdleConns(cfg.Pool.MaxIdle)
	sqlDB.SetConnMaxLifetime(cfg.Pool.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.Pool.ConnMaxIdleTime)
	if isMemory(cfg) {
		// each connection to :memory: is a separate database
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
		sqlDB.SetConnMaxIdleTime(0)
	}

	log.Info("database opened",
		zap.String("driver", gdb.Dialector.Name()),
		zap.Int("max_open", cfg.Pool.MaxOpen),
		zap.Duration("conn_max_idle_time", cfg.Pool.ConnMaxIdleTime),
	)
	return gdb, nil
}

func isMemory(cfg config.DatabaseConfig) bool {
	if cfg.Driver != config.DriverSQLite && cfg.Driver != "" {
		return false
	}
	dsn := DSN(cfg)
	return dsn == MemoryDSN || strings.Contains(dsn, "mode=memory")
}

// Ping checks the connection under the retry policy. Each attempt is bounded
// by timeout when it is positive.
func Ping(ctx context.Context, gdb *gorm.DB, exec *retry.Executor, timeout time.Duration) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return fmt.Errorf("db: get sql.DB: %w", err)
	}
	if exec == nil {
		exec = retry.New(retry.Options{}, nil)
	}
	return exec.Do(ctx, func(ctx context.Context) error {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			return fmt.Errorf("db: ping: %w", err)
		}
		return nil
	})
}
