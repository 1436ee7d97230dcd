package main

import (
	"fmt"
	"strings"

	"github.com/isoqms/qms/internal/config"
	"github.com/isoqms/qms/internal/db"
	"github.com/isoqms/qms/internal/inspection"
	"github.com/isoqms/qms/internal/logging"
	"github.com/isoqms/qms/internal/models"
	"github.com/isoqms/qms/internal/retry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// app holds the wired store for one command invocation.
type app struct {
	cfg   *config.Config
	log   *zap.Logger
	db    *gorm.DB
	retry *retry.Executor
	store *inspection.Store
}

// connectFromConfig loads the config, opens the database and builds the
// stores. It does not touch the schema.
func connectFromConfig(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	gormDB, err := db.Open(cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Database.Driver, err)
	}

	exec := retry.New(retry.Options{
		MaxRetries:   cfg.Retry.MaxRetries,
		InitialDelay: cfg.Retry.InitialDelay,
		Factor:       cfg.Retry.Factor,
	}, log)

	return &app{
		cfg:   cfg,
		log:   log,
		db:    gormDB,
		retry: exec,
		store: inspection.NewStore(gormDB, exec, log),
	}, nil
}

// openStore connects and brings the schema up to date.
func openStore(cmd *cobra.Command, configPath string) (*app, error) {
	a, err := connectFromConfig(configPath)
	if err != nil {
		return nil, err
	}
	if _, err := a.synchronizer().EnsureSchema(cmd.Context()); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) synchronizer() *db.Synchronizer {
	s := db.NewSynchronizer(a.db, a.retry, a.log)
	s.ConnectTimeout = a.cfg.Database.Pool.ConnectTimeout
	return s
}

func (a *app) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
	a.log.Sync()
}

// identityFlags binds the caller identity flags shared by write commands.
type identityFlags struct {
	id   string
	name string
	role string
}

func (f *identityFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.id, "user", "cli", "acting user id")
	cmd.Flags().StringVar(&f.name, "name", "", "acting user display name")
	cmd.Flags().StringVar(&f.role, "role", string(models.RoleQC), "acting user role (ADMIN, MANAGER, QA, QC)")
}

func (f *identityFlags) identity() models.Identity {
	return models.Identity{ID: f.id, Name: f.name, Role: models.Role(strings.ToUpper(f.role))}
}
