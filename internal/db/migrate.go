package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/isoqms/qms/internal/models"
	"github.com/isoqms/qms/internal/retry"
	"github.com/isoqms/qms/internal/router"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Migration is one additive step of the form-table schema. An empty Family
// applies the step to every form table.
type Migration struct {
	Version int
	Family  router.Family
	Columns []string
}

// Migrations is the ordered list of form-table schema steps.
var Migrations = []Migration{
	{Version: 1, Columns: router.CommonColumns},
	{Version: 2, Family: router.FamilyProduction, Columns: router.ProductionColumns},
	{Version: 3, Family: router.FamilyMaterial, Columns: router.MaterialColumns},
	{Version: 4, Family: router.FamilySite, Columns: router.SiteColumns},
}

// SharedModels returns the tables used by every record type.
func SharedModels() []interface{} {
	return []interface{}{
		&models.InspectionIndex{},
		&models.ImageAsset{},
		&models.NCRRecord{},
		&models.SchemaVersion{},
	}
}

// TableReport describes what one synchronization pass did to one table.
type TableReport struct {
	Table       string
	Family      router.Family
	Created     bool
	Added       []string
	FromVersion int
	ToVersion   int
	Err         error
}

// SyncReport collects the per-table outcome of EnsureSchema.
type SyncReport struct {
	Shared []TableReport
	Forms  []TableReport
}

// Failed returns the tables that reported an error.
func (r *SyncReport) Failed() []TableReport {
	var out []TableReport
	for _, tr := range append(append([]TableReport{}, r.Shared...), r.Forms...) {
		if tr.Err != nil {
			out = append(out, tr)
		}
	}
	return out
}

// Synchronizer brings the shared and per-type form tables up to the current
// column set. It only ever adds tables and columns.
type Synchronizer struct {
	DB             *gorm.DB
	Retry          *retry.Executor
	Log            *zap.Logger
	ConnectTimeout time.Duration
	Migrations     []Migration
}

// NewSynchronizer returns a Synchronizer using the package Migrations.
func NewSynchronizer(gdb *gorm.DB, exec *retry.Executor, log *zap.Logger) *Synchronizer {
	if log == nil {
		log = zap.NewNop()
	}
	if exec == nil {
		exec = retry.New(retry.Options{}, log)
	}
	return &Synchronizer{DB: gdb, Retry: exec, Log: log, Migrations: Migrations}
}

// EnsureSchema runs one synchronization pass. Only a failed baseline
// connection is returned as an error; per-table failures are logged and
// recorded in the report so the remaining tables are still processed.
func (s *Synchronizer) EnsureSchema(ctx context.Context) (*SyncReport, error) {
	if err := Ping(ctx, s.DB, s.Retry, s.ConnectTimeout); err != nil {
		return nil, fmt.Errorf("db: baseline connection: %w", err)
	}

	report := &SyncReport{}
	for _, model := range SharedModels() {
		report.Shared = append(report.Shared, s.syncShared(ctx, model))
	}
	for _, route := range router.Tables() {
		report.Forms = append(report.Forms, s.syncForm(ctx, route))
	}

	s.Log.Info("schema synchronized",
		zap.Int("form_tables", len(report.Forms)),
		zap.Int("failed", len(report.Failed())),
	)
	return report, nil
}

func (s *Synchronizer) syncShared(ctx context.Context, model interface{}) TableReport {
	tr := TableReport{Table: tableName(s.DB, model)}
	err := s.Retry.Do(ctx, func(ctx context.Context) error {
		if !s.DB.WithContext(ctx).Migrator().HasTable(model) {
			tr.Created = true
		}
		return s.DB.WithContext(ctx).AutoMigrate(model)
	})
	if err != nil {
		tr.Err = fmt.Errorf("db: migrate %s: %w", tr.Table, err)
		s.Log.Error("shared table migration failed", zap.String("table", tr.Table), zap.Error(err))
	}
	return tr
}

func (s *Synchronizer) syncForm(ctx context.Context, route router.TableRoute) TableReport {
	tr := TableReport{Table: route.Table, Family: route.Family}

	err := s.Retry.Do(ctx, func(ctx context.Context) error {
		created, err := s.ensureTable(ctx, route.Table)
		tr.Created = tr.Created || created
		return err
	})
	if err != nil {
		tr.Err = fmt.Errorf("db: create %s: %w", route.Table, err)
		s.Log.Error("form table create failed", zap.String("table", route.Table), zap.Error(err))
		return tr
	}

	current, err := s.appliedVersion(ctx, route.Table)
	if err != nil {
		// fall back to probing every column
		s.Log.Warn("schema version lookup failed", zap.String("table", route.Table), zap.Error(err))
		current = 0
	}
	tr.FromVersion, tr.ToVersion = current, current

	model := router.RowModel(route.Family)
	var stepErrs []error
	for _, m := range s.Migrations {
		if m.Version <= current {
			continue
		}
		if m.Family != "" && m.Family != route.Family {
			if len(stepErrs) == 0 {
				tr.ToVersion = m.Version
			}
			continue
		}
		added, err := s.applyStep(ctx, route.Table, model, m)
		tr.Added = append(tr.Added, added...)
		if err != nil {
			stepErrs = append(stepErrs, err)
			continue
		}
		if len(stepErrs) == 0 {
			tr.ToVersion = m.Version
		}
	}
	if len(stepErrs) > 0 {
		tr.Err = errors.Join(stepErrs...)
		s.Log.Error("form table migration incomplete",
			zap.String("table", route.Table),
			zap.Int("version", tr.ToVersion),
			zap.Error(tr.Err),
		)
	}

	if tr.ToVersion > current {
		if err := s.recordVersion(ctx, route.Table, tr.ToVersion); err != nil {
			s.Log.Warn("schema version record failed", zap.String("table", route.Table), zap.Error(err))
			if tr.Err == nil {
				tr.Err = err
			}
		}
	}
	if len(tr.Added) > 0 || tr.Created {
		s.Log.Info("form table updated",
			zap.String("table", route.Table),
			zap.Bool("created", tr.Created),
			zap.Strings("added", tr.Added),
		)
	}
	return tr
}

// ensureTable creates table with only the key and timestamp columns if it is
// absent. Losing a create race to another process is not an error.
func (s *Synchronizer) ensureTable(ctx context.Context, table string) (bool, error) {
	m := s.DB.WithContext(ctx).Migrator()
	if m.HasTable(table) {
		return false, nil
	}
	if err := s.DB.WithContext(ctx).Table(table).Migrator().CreateTable(&models.FormBootstrap{}); err != nil {
		if s.DB.WithContext(ctx).Migrator().HasTable(table) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Synchronizer) applyStep(ctx context.Context, table string, model interface{}, m Migration) ([]string, error) {
	var added []string
	var errs []error
	for _, col := range m.Columns {
		var did bool
		err := s.Retry.Do(ctx, func(ctx context.Context) error {
			var err error
			did, err = s.addColumn(ctx, table, model, col)
			return err
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("db: v%d add column %s.%s: %w", m.Version, table, col, err))
			continue
		}
		if did {
			added = append(added, col)
		}
	}
	return added, errors.Join(errs...)
}

// addColumn adds col to table unless it already exists.
func (s *Synchronizer) addColumn(ctx context.Context, table string, model interface{}, col string) (bool, error) {
	if s.DB.WithContext(ctx).Table(table).Migrator().HasColumn(model, col) {
		return false, nil
	}
	if err := s.DB.WithContext(ctx).Table(table).Migrator().AddColumn(model, col); err != nil {
		if isDuplicateColumn(err) || s.DB.WithContext(ctx).Table(table).Migrator().HasColumn(model, col) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Synchronizer) appliedVersion(ctx context.Context, table string) (int, error) {
	var sv models.SchemaVersion
	err := s.Retry.Do(ctx, func(ctx context.Context) error {
		return s.DB.WithContext(ctx).Where("form_table = ?", table).Take(&sv).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return sv.Version, nil
}

func (s *Synchronizer) recordVersion(ctx context.Context, table string, version int) error {
	sv := models.SchemaVersion{FormTable: table, Version: version, UpdatedAt: time.Now().UTC()}
	return s.Retry.Do(ctx, func(ctx context.Context) error {
		return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "form_table"}},
			DoUpdates: clause.AssignmentColumns([]string{"version", "updated_at"}),
		}).Create(&sv).Error
	})
}

func isDuplicateColumn(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate column") || strings.Contains(msg, "already exists")
}

func tableName(gdb *gorm.DB, model interface{}) string {
	stmt := &gorm.Statement{DB: gdb}
	if err := stmt.Parse(model); err != nil {
		return fmt.Sprintf("%T", model)
	}
	return stmt.Schema.Table
}
