// Package inspection is the persistence layer for inspection records. A save
// routes the record to its family table, off-loads inline images and
// projects failed items into NCRs; a read reverses the process.
package inspection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/isoqms/qms/internal/images"
	"github.com/isoqms/qms/internal/models"
	"github.com/isoqms/qms/internal/ncr"
	"github.com/isoqms/qms/internal/retry"
	"github.com/isoqms/qms/internal/router"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// indexColumns are refreshed on every save. created_at keeps its first value.
var indexColumns = []string{
	"type", "form_table", "project_code", "project_name", "item_title",
	"inspector", "status", "inspection_date", "score", "updated_at",
}

// Store saves, loads and deletes inspection records.
type Store struct {
	db     *gorm.DB
	exec   *retry.Executor
	images *images.Store
	ncrs   *ncr.Store
	log    *zap.Logger
	now    func() time.Time
}

// NewStore returns a Store backed by db. Multi-step operations run under
// exec.
func NewStore(db *gorm.DB, exec *retry.Executor, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	if exec == nil {
		exec = retry.New(retry.Options{}, log)
	}
	return &Store{
		db:     db,
		exec:   exec,
		images: images.NewStore(db, log),
		ncrs:   ncr.NewStore(db, exec, log),
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// NCRs returns the NCR store sharing this store's connection and policy.
func (s *Store) NCRs() *ncr.Store { return s.ncrs }

// Save validates rec and writes it, replacing any previous version with the
// same id. rec itself is not modified. reporter is recorded as the creator of
// NCRs raised by this save.
func (s *Store) Save(ctx context.Context, rec *models.Inspection, reporter models.Identity) error {
	if err := Validate(rec); err != nil {
		return err
	}
	return s.exec.Do(ctx, func(ctx context.Context) error {
		work, err := clone(rec)
		if err != nil {
			return err
		}
		return s.save(ctx, work, reporter)
	})
}

// save runs the write sequence on a private copy of the record: index row,
// image replace, NCR projection and finally the family row upsert.
func (s *Store) save(ctx context.Context, rec *models.Inspection, reporter models.Identity) error {
	table := router.TableFor(rec.Type)
	family := router.FamilyFor(rec.Type)
	db := s.db.WithContext(ctx)

	var prev models.InspectionIndex
	err := db.Where("id = ?", rec.ID).Take(&prev).Error
	switch {
	case err == nil:
		if prev.FormTable != "" && prev.FormTable != table {
			return &ValidationError{Fields: []FieldError{{
				Field:   "type",
				Message: fmt.Sprintf("cannot change from %s to %s", prev.Type, rec.Type),
			}}}
		}
		rec.CreatedAt = prev.CreatedAt
	case errors.Is(err, gorm.ErrRecordNotFound):
		rec.CreatedAt = s.now()
	default:
		return fmt.Errorf("inspection: load index %s: %w", rec.ID, err)
	}
	rec.UpdatedAt = s.now()
	if rec.Status == "" {
		rec.Status = models.StatusDraft
	}

	idx := indexRow(rec, table)
	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(indexColumns),
	}).Create(&idx).Error
	if err != nil {
		return fmt.Errorf("inspection: upsert index %s: %w", rec.ID, err)
	}

	if err := s.images.DeleteByParent(ctx, rec.ID); err != nil {
		return err
	}
	s.offloadTopLevel(ctx, rec)
	s.offloadNested(ctx, rec)

	raised, err := s.projectNCRs(ctx, rec, reporter)
	if err != nil {
		return err
	}

	fields := router.FieldSetFor(rec.Type)
	row := toRow(rec, family)
	err = db.Table(table).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(append(fields.All(), "updated_at")),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("inspection: upsert %s row %s: %w", table, rec.ID, err)
	}

	s.log.Info("inspection saved",
		zap.String("id", rec.ID),
		zap.String("type", string(rec.Type)),
		zap.String("table", table),
		zap.Int("ncrs", raised),
	)
	return nil
}

func (s *Store) offloadTopLevel(ctx context.Context, rec *models.Inspection) {
	rec.Images = s.images.Offload(ctx, rec.ID, models.EntityInspection, rec.Images, models.RoleEvidence, "")
	if m := rec.Material; m != nil {
		m.DeliveryNoteImages = s.images.Offload(ctx, rec.ID, models.EntityInspection, m.DeliveryNoteImages, models.RoleEvidence, models.SlotDeliveryNote)
		m.SupplierReportImages = s.images.Offload(ctx, rec.ID, models.EntityInspection, m.SupplierReportImages, models.RoleEvidence, models.SlotSupplierReport)
	}
}

func (s *Store) offloadNested(ctx context.Context, rec *models.Inspection) {
	s.offloadItems(ctx, rec.ID, rec.Items, func(it models.CheckItem) string { return it.ID })
	if rec.Material == nil {
		return
	}
	for i := range rec.Material.Materials {
		mat := &rec.Material.Materials[i]
		if mat.ID != "" {
			mat.Images = s.images.Offload(ctx, rec.ID, models.EntityInspection, mat.Images, models.RoleEvidence, images.MaterialKey(mat.ID))
		} else {
			mat.Images = passThrough(mat.Images)
		}
		s.offloadItems(ctx, rec.ID, mat.Items, func(it models.CheckItem) string {
			return images.MaterialItemKey(mat.ID, it.ID)
		})
	}
}

// offloadItems replaces item images with references. Items without an id
// keep only their pass-through references; validation rejects inline images
// on them.
func (s *Store) offloadItems(ctx context.Context, parentID string, items []models.CheckItem, key func(models.CheckItem) string) {
	for i := range items {
		if items[i].ID == "" {
			items[i].Images = passThrough(items[i].Images)
			continue
		}
		items[i].Images = s.images.Offload(ctx, parentID, models.EntityInspection, items[i].Images, models.RoleEvidence, key(items[i]))
	}
}

// projectNCRs persists the NCR payload of every failed item, links the item
// to it and clears the payload from the item.
func (s *Store) projectNCRs(ctx context.Context, rec *models.Inspection, reporter models.Identity) (int, error) {
	raised := 0
	project := func(items []models.CheckItem) error {
		for i := range items {
			id, err := s.ncrs.ProjectIfNeeded(ctx, rec.ID, items[i], reporter)
			if err != nil {
				return err
			}
			if id != "" {
				items[i].NCRID = id
				raised++
			}
			items[i].NonConformance = nil
		}
		return nil
	}

	if err := project(rec.Items); err != nil {
		return raised, err
	}
	if rec.Material != nil {
		for i := range rec.Material.Materials {
			if err := project(rec.Material.Materials[i].Items); err != nil {
				return raised, err
			}
		}
	}
	return raised, nil
}

// Get returns the record with id, with images and NCR payloads spliced back
// in. A missing id returns ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*models.Inspection, error) {
	idx, err := retry.Value(ctx, s.exec, func(ctx context.Context) (*models.InspectionIndex, error) {
		return s.loadIndex(ctx, s.db, id)
	})
	if err != nil {
		return nil, err
	}

	table, family := routeOf(idx)
	row := router.RowModel(family)
	err = s.exec.Do(ctx, func(ctx context.Context) error {
		return s.db.WithContext(ctx).Table(table).Where("id = ?", id).Take(row).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("inspection: load %s row %s: %w", table, id, err)
	}
	rec, err := fromRow(row)
	if err != nil {
		return nil, err
	}

	assets, err := retry.Value(ctx, s.exec, func(ctx context.Context) ([]models.ImageAsset, error) {
		return s.images.Rehydrate(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	spliceImages(rec, assets)

	ncrs, err := s.ncrs.ListByInspection(ctx, id)
	if err != nil {
		return nil, err
	}
	attachNCRs(rec, ncrs)
	return rec, nil
}

func spliceImages(rec *models.Inspection, assets []models.ImageAsset) {
	rec.Images = images.Resolve(rec.Images, images.TopLevel(assets))
	for i := range rec.Items {
		rec.Items[i].Images = images.Resolve(rec.Items[i].Images, images.ForItem(assets, rec.Items[i].ID))
	}
	m := rec.Material
	if m == nil {
		return
	}
	m.DeliveryNoteImages = images.Resolve(m.DeliveryNoteImages, images.ForSlot(assets, models.SlotDeliveryNote))
	m.SupplierReportImages = images.Resolve(m.SupplierReportImages, images.ForSlot(assets, models.SlotSupplierReport))
	for i := range m.Materials {
		mat := &m.Materials[i]
		mat.Images = images.Resolve(mat.Images, images.ForItem(assets, images.MaterialKey(mat.ID)))
		for j := range mat.Items {
			it := &mat.Items[j]
			if it.ID == "" {
				continue
			}
			it.Images = images.Resolve(it.Images, images.ForItem(assets, images.MaterialItemKey(mat.ID, it.ID)))
		}
	}
}

func attachNCRs(rec *models.Inspection, ncrs []models.NonConformance) {
	if len(ncrs) == 0 {
		return
	}
	byID := make(map[string]models.NonConformance, len(ncrs))
	for _, n := range ncrs {
		byID[n.ID] = n
	}
	attach := func(items []models.CheckItem) {
		for i := range items {
			if n, ok := byID[items[i].NCRID]; ok {
				items[i].NonConformance = &n
			}
		}
	}
	attach(rec.Items)
	if rec.Material != nil {
		for i := range rec.Material.Materials {
			attach(rec.Material.Materials[i].Items)
		}
	}
}

// Delete removes the record, its images and its NCRs in one transaction. It
// reports false, with no error, when id does not exist.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	var found bool
	err := s.exec.Do(ctx, func(ctx context.Context) error {
		found = false
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			idx, err := s.loadIndex(ctx, tx, id)
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}

			table, family := routeOf(idx)
			if err := tx.Table(table).Where("id = ?", id).Delete(router.RowModel(family)).Error; err != nil {
				return fmt.Errorf("inspection: delete %s row %s: %w", table, id, err)
			}
			if err := s.images.WithDB(tx).DeleteByParent(ctx, id); err != nil {
				return err
			}
			if _, err := s.ncrs.WithDB(tx).DeleteByInspection(ctx, id); err != nil {
				return err
			}
			if err := tx.Where("id = ?", id).Delete(&models.InspectionIndex{}).Error; err != nil {
				return fmt.Errorf("inspection: delete index %s: %w", id, err)
			}
			found = true
			return nil
		})
	})
	if err != nil {
		return false, err
	}
	if found {
		s.log.Info("inspection deleted", zap.String("id", id))
	}
	return found, nil
}

func (s *Store) loadIndex(ctx context.Context, db *gorm.DB, id string) (*models.InspectionIndex, error) {
	var idx models.InspectionIndex
	err := db.WithContext(ctx).Where("id = ?", id).Take(&idx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("inspection: load index %s: %w", id, err)
	}
	return &idx, nil
}

// routeOf prefers the table recorded at save time over re-deriving it.
func routeOf(idx *models.InspectionIndex) (string, router.Family) {
	t := models.RecordType(idx.Type)
	table := idx.FormTable
	if table == "" {
		table = router.TableFor(t)
	}
	return table, router.FamilyFor(t)
}

func passThrough(imgs []string) []string {
	out := make([]string, 0, len(imgs))
	for _, img := range imgs {
		if img != "" && !images.IsInline(img) {
			out = append(out, img)
		}
	}
	return out
}
