package ncr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/isoqms/qms/internal/models"
	"github.com/isoqms/qms/internal/retry"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store reads and writes NCR rows. ProjectIfNeeded and DeleteByInspection run
// inside the caller's retry scope; the other operations apply the retry
// policy themselves.
type Store struct {
	db    *gorm.DB
	exec  *retry.Executor
	log   *zap.Logger
	now   func() time.Time
	newID func() string
}

// NewStore returns a Store backed by db.
func NewStore(db *gorm.DB, exec *retry.Executor, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	if exec == nil {
		exec = retry.New(retry.Options{}, log)
	}
	return &Store{
		db:    db,
		exec:  exec,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// WithDB returns a copy of s that runs against db, typically a transaction.
func (s *Store) WithDB(db *gorm.DB) *Store {
	cp := *s
	cp.db = db
	return &cp
}

// ProjectIfNeeded persists the non-conformance payload of a failed item and
// returns its id. Items that did not fail, or fail without a payload, are
// ignored and "" is returned. A CLOSED NCR is left untouched.
func (s *Store) ProjectIfNeeded(ctx context.Context, inspectionID string, item models.CheckItem, reporter models.Identity) (string, error) {
	if item.Status != models.CheckFail || item.NonConformance == nil {
		return "", nil
	}

	nc := *item.NonConformance
	nc.InspectionID = inspectionID
	nc.ItemID = item.ID
	if nc.ItemID == "" {
		nc.ItemID = UnknownItem
	}
	if nc.ID == "" {
		nc.ID = DefaultID(inspectionID, nc.ItemID)
	}

	existing, err := s.load(ctx, nc.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", err
	}
	if existing != nil && models.NCRStatus(existing.Status) == models.NCRClosed {
		s.log.Debug("ncr closed, projection skipped", zap.String("ncr_id", nc.ID))
		return nc.ID, nil
	}

	now := s.now()
	nc.Status = DeriveStatus("", nc.ImagesAfter)
	nc.UpdatedAt = now
	if existing == nil {
		nc.CreatedAt = now
		if nc.CreatedBy == "" {
			nc.CreatedBy = reporterName(reporter)
		}
	}
	nc.ClosedBy, nc.ClosedAt = "", nil

	rec := toRecord(nc)
	if existing == nil {
		res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
		if res.Error != nil {
			return "", fmt.Errorf("ncr: project %s: %w", nc.ID, res.Error)
		}
		if res.RowsAffected > 0 {
			return nc.ID, nil
		}
		// created concurrently; continue as an update
	}
	updated, err := s.updateUnlessClosed(ctx, nc.ID, projectedValues(rec))
	if err != nil {
		return "", fmt.Errorf("ncr: project %s: %w", nc.ID, err)
	}
	if !updated {
		s.log.Debug("ncr closed, projection skipped", zap.String("ncr_id", nc.ID))
	}
	return nc.ID, nil
}

// updateUnlessClosed writes values to the NCR id unless it is CLOSED. The
// status check and the write are one statement. It reports whether a row
// changed.
func (s *Store) updateUnlessClosed(ctx context.Context, id string, values map[string]interface{}) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.NCRRecord{}).
		Where("id = ? AND status <> ?", id, string(models.NCRClosed)).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// lockedUnlessOpen turns a guarded write that changed nothing into ErrLocked
// when the row is CLOSED, or ErrNotFound when it is gone.
func (s *Store) lockedUnlessOpen(ctx context.Context, id string) error {
	cur, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if models.NCRStatus(cur.Status) == models.NCRClosed {
		return fmt.Errorf("%w: %s", ErrLocked, id)
	}
	return nil
}

// DeleteByInspection removes every NCR raised from inspectionID.
func (s *Store) DeleteByInspection(ctx context.Context, inspectionID string) (int64, error) {
	res := s.db.WithContext(ctx).Where("inspection_id = ?", inspectionID).Delete(&models.NCRRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("ncr: delete for inspection %s: %w", inspectionID, res.Error)
	}
	return res.RowsAffected, nil
}

// Get returns the NCR with the given id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*models.NonConformance, error) {
	rec, err := retry.Value(ctx, s.exec, func(ctx context.Context) (*models.NCRRecord, error) {
		return s.load(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	nc := toDomain(*rec)
	return &nc, nil
}

// ListByInspection returns the NCRs of one inspection, oldest first.
func (s *Store) ListByInspection(ctx context.Context, inspectionID string) ([]models.NonConformance, error) {
	var recs []models.NCRRecord
	err := s.exec.Do(ctx, func(ctx context.Context) error {
		recs = nil
		return s.db.WithContext(ctx).
			Where("inspection_id = ?", inspectionID).
			Order("created_at ASC").Order("id ASC").
			Find(&recs).Error
	})
	if err != nil {
		return nil, fmt.Errorf("ncr: list for inspection %s: %w", inspectionID, err)
	}
	return domainList(recs), nil
}

// Filters narrows List. Empty fields and "ALL" match everything.
type Filters struct {
	Status       string
	Severity     string
	InspectionID string
	Page         int
	Limit        int
}

// ListResult is one page of NCRs and the total matching count.
type ListResult struct {
	Items []models.NonConformance
	Total int64
	Page  int
	Limit int
}

// List returns NCRs matching f, most recently updated first.
func (s *Store) List(ctx context.Context, f Filters) (*ListResult, error) {
	page, limit := f.Page, f.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	scope := func(db *gorm.DB) *gorm.DB {
		if v := strings.TrimSpace(f.Status); v != "" && !strings.EqualFold(v, "ALL") {
			db = db.Where("status = ?", strings.ToUpper(v))
		}
		if v := strings.TrimSpace(f.Severity); v != "" && !strings.EqualFold(v, "ALL") {
			db = db.Where("severity = ?", strings.ToUpper(v))
		}
		if f.InspectionID != "" {
			db = db.Where("inspection_id = ?", f.InspectionID)
		}
		return db
	}

	result := &ListResult{Page: page, Limit: limit}
	err := s.exec.Do(ctx, func(ctx context.Context) error {
		var recs []models.NCRRecord
		q := s.db.WithContext(ctx).Model(&models.NCRRecord{}).Scopes(scope)
		if err := q.Count(&result.Total).Error; err != nil {
			return err
		}
		err := s.db.WithContext(ctx).Scopes(scope).
			Order("updated_at DESC").Order("id ASC").
			Offset((page - 1) * limit).Limit(limit).
			Find(&recs).Error
		if err != nil {
			return err
		}
		result.Items = domainList(recs)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ncr: list: %w", err)
	}
	return result, nil
}

// Update replaces the editable fields of an existing NCR and re-derives its
// status. CLOSED NCRs return ErrLocked.
func (s *Store) Update(ctx context.Context, nc models.NonConformance) (*models.NonConformance, error) {
	var out models.NonConformance
	err := s.exec.Do(ctx, func(ctx context.Context) error {
		rec, err := s.load(ctx, nc.ID)
		if err != nil {
			return err
		}
		if models.NCRStatus(rec.Status) == models.NCRClosed {
			return fmt.Errorf("%w: %s", ErrLocked, nc.ID)
		}

		rec.DefectCode = nc.DefectCode
		rec.Severity = string(nc.Severity)
		rec.Description = nc.Description
		rec.RootCause = nc.RootCause
		rec.CorrectiveAction = nc.CorrectiveAction
		rec.PreventiveAction = nc.PreventiveAction
		rec.ResponsiblePerson = nc.ResponsiblePerson
		rec.Deadline = nc.Deadline
		rec.ImagesBefore = datatypes.NewJSONType(nonNil(nc.ImagesBefore))
		rec.ImagesAfter = datatypes.NewJSONType(nonNil(nc.ImagesAfter))
		rec.Status = string(DeriveStatus("", rec.ImagesAfter.Data()))
		rec.UpdatedAt = s.now()

		updated, err := s.updateUnlessClosed(ctx, nc.ID, projectedValues(*rec))
		if err != nil {
			return fmt.Errorf("ncr: update %s: %w", nc.ID, err)
		}
		if !updated {
			if err := s.lockedUnlessOpen(ctx, nc.ID); err != nil {
				return err
			}
		}
		out = toDomain(*rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Approve closes an NCR. Only elevated identities may approve; approving an
// already closed NCR returns it unchanged.
func (s *Store) Approve(ctx context.Context, id string, who models.Identity) (*models.NonConformance, error) {
	if !who.Elevated() {
		return nil, fmt.Errorf("%w: role %q", ErrForbidden, who.Role)
	}

	var out models.NonConformance
	err := s.exec.Do(ctx, func(ctx context.Context) error {
		rec, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if models.NCRStatus(rec.Status) != models.NCRClosed {
			now := s.now()
			closedBy := reporterName(who)
			updated, err := s.updateUnlessClosed(ctx, id, map[string]interface{}{
				"status":     string(models.NCRClosed),
				"closed_by":  closedBy,
				"closed_at":  now,
				"updated_at": now,
			})
			if err != nil {
				return fmt.Errorf("ncr: approve %s: %w", id, err)
			}
			if updated {
				s.log.Info("ncr closed", zap.String("ncr_id", id), zap.String("closed_by", closedBy))
			}
			// reload so a concurrent approval's closure fields are returned
			if rec, err = s.load(ctx, id); err != nil {
				return err
			}
		}
		out = toDomain(*rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AddComment appends a comment to the NCR's thread and returns it. Closed
// NCRs return ErrLocked.
func (s *Store) AddComment(ctx context.Context, id string, who models.Identity, text string, attachments []string) (*models.Comment, error) {
	if strings.TrimSpace(text) == "" && len(attachments) == 0 {
		return nil, fmt.Errorf("ncr: comment on %s: text or attachment required", id)
	}

	c := models.Comment{
		ID:          s.newID(),
		AuthorID:    who.ID,
		AuthorName:  who.Name,
		Text:        text,
		Attachments: nonNil(attachments),
	}
	err := s.exec.Do(ctx, func(ctx context.Context) error {
		rec, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if models.NCRStatus(rec.Status) == models.NCRClosed {
			return fmt.Errorf("%w: %s", ErrLocked, id)
		}
		c.CreatedAt = s.now()
		thread := append(rec.Comments.Data(), c)
		updated, err := s.updateUnlessClosed(ctx, id, map[string]interface{}{
			"comments":   datatypes.NewJSONType(thread),
			"updated_at": c.CreatedAt,
		})
		if err != nil {
			return fmt.Errorf("ncr: comment on %s: %w", id, err)
		}
		if !updated {
			return s.lockedUnlessOpen(ctx, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) load(ctx context.Context, id string) (*models.NCRRecord, error) {
	var rec models.NCRRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("ncr: load %s: %w", id, err)
	}
	return &rec, nil
}

func domainList(recs []models.NCRRecord) []models.NonConformance {
	out := make([]models.NonConformance, 0, len(recs))
	for _, r := range recs {
		out = append(out, toDomain(r))
	}
	return out
}

func reporterName(who models.Identity) string {
	if who.Name != "" {
		return who.Name
	}
	return who.ID
}
