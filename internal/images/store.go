// Package images off-loads inline image payloads from inspection documents
// into the shared image table and joins them back on read.
package images

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/isoqms/qms/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// inlinePrefix marks an image value carrying its payload inline.
	inlinePrefix = "data:"
	// refPrefix marks a reference to an off-loaded asset.
	refPrefix = "img:"
	// materialPrefix namespaces material item keys away from record item ids.
	materialPrefix = "MAT:"
)

// IsInline reports whether v is an inline data payload rather than a reference.
func IsInline(v string) bool {
	return strings.HasPrefix(v, inlinePrefix)
}

// Ref returns the stored reference of asset id.
func Ref(id string) string {
	return refPrefix + id
}

// assetID returns the asset id named by ref, if ref is an asset reference.
func assetID(ref string) (string, bool) {
	if !strings.HasPrefix(ref, refPrefix) {
		return "", false
	}
	return strings.TrimPrefix(ref, refPrefix), true
}

// Store persists and loads image assets.
type Store struct {
	db    *gorm.DB
	log   *zap.Logger
	newID func() string
	now   func() time.Time
}

// NewStore returns a Store backed by db.
func NewStore(db *gorm.DB, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		db:    db,
		log:   log,
		newID: uuid.NewString,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithDB returns a copy of s that runs against db, typically a transaction.
func (s *Store) WithDB(db *gorm.DB) *Store {
	cp := *s
	cp.db = db
	return &cp
}

// Offload persists every inline payload in images as one asset keyed by
// parentID and itemID, and returns the reference list with each payload
// replaced by a Ref to its new asset. Empty values are dropped and references pass
// through unchanged. An image that fails to persist is logged and left out.
func (s *Store) Offload(ctx context.Context, parentID string, entity models.EntityType, images []string, role models.ImageRole, itemID string) []string {
	refs := make([]string, 0, len(images))
	for pos, v := range images {
		if v == "" {
			continue
		}
		if !IsInline(v) {
			refs = append(refs, v)
			continue
		}

		asset := models.ImageAsset{
			ID:             s.newID(),
			ParentEntityID: parentID,
			EntityType:     string(entity),
			Role:           string(role),
			URLHD:          v,
			URLThumbnail:   v,
			Position:       pos,
			CreatedAt:      s.now(),
		}
		if itemID != "" {
			key := itemID
			asset.RelatedItemID = &key
		}
		if err := s.db.WithContext(ctx).Create(&asset).Error; err != nil {
			s.log.Warn("image offload failed, skipping",
				zap.String("parent_id", parentID),
				zap.String("item_id", itemID),
				zap.Int("position", pos),
				zap.Error(err),
			)
			continue
		}
		refs = append(refs, Ref(asset.ID))
	}
	return refs
}

// DeleteByParent removes every asset of parentID.
func (s *Store) DeleteByParent(ctx context.Context, parentID string) error {
	if err := s.db.WithContext(ctx).Where("parent_entity_id = ?", parentID).Delete(&models.ImageAsset{}).Error; err != nil {
		return fmt.Errorf("images: delete %s: %w", parentID, err)
	}
	return nil
}

// Rehydrate returns every asset of parentID in position order.
func (s *Store) Rehydrate(ctx context.Context, parentID string) ([]models.ImageAsset, error) {
	var assets []models.ImageAsset
	err := s.db.WithContext(ctx).
		Where("parent_entity_id = ?", parentID).
		Order("position ASC").Order("created_at ASC").
		Find(&assets).Error
	if err != nil {
		return nil, fmt.Errorf("images: rehydrate %s: %w", parentID, err)
	}
	return assets, nil
}

// TopLevel returns the record-level evidence assets: role EVIDENCE with no
// item key.
func TopLevel(assets []models.ImageAsset) []models.ImageAsset {
	return filter(assets, func(a models.ImageAsset) bool {
		return a.Role == string(models.RoleEvidence) && a.ItemKey() == ""
	})
}

// ForItem returns the assets keyed to itemID.
func ForItem(assets []models.ImageAsset, itemID string) []models.ImageAsset {
	if itemID == "" {
		return nil
	}
	return filter(assets, func(a models.ImageAsset) bool { return a.ItemKey() == itemID })
}

// ForSlot returns the assets of a named document slot such as
// models.SlotDeliveryNote.
func ForSlot(assets []models.ImageAsset, slot string) []models.ImageAsset {
	return ForItem(assets, slot)
}

// MaterialKey is the item key of a material's own images.
func MaterialKey(materialID string) string {
	return materialPrefix + materialID
}

// MaterialItemKey is the item key of an image on a check item nested in a
// material.
func MaterialItemKey(materialID, itemID string) string {
	return MaterialKey(materialID) + "/" + itemID
}

// Reserved reports whether itemID would collide with a slot or material key
// if used as a record-level check item id.
func Reserved(itemID string) bool {
	return itemID == models.SlotDeliveryNote ||
		itemID == models.SlotSupplierReport ||
		strings.HasPrefix(itemID, materialPrefix)
}

// Resolve joins stored references with their assets. Each reference that
// names an asset is replaced by its payload. A Ref whose asset no longer
// exists is dropped and any other reference passes through. Assets not named
// by any reference are appended in position order.
func Resolve(refs []string, assets []models.ImageAsset) []string {
	byID := make(map[string]models.ImageAsset, len(assets))
	for _, a := range assets {
		byID[a.ID] = a
	}

	out := make([]string, 0, len(refs)+len(assets))
	used := make(map[string]bool, len(assets))
	for _, ref := range refs {
		id, tagged := assetID(ref)
		if !tagged {
			id = ref
		}
		if a, ok := byID[id]; ok {
			out = append(out, a.URLHD)
			used[id] = true
			continue
		}
		if tagged {
			continue
		}
		out = append(out, ref)
	}

	rest := make([]models.ImageAsset, 0, len(assets))
	for _, a := range assets {
		if !used[a.ID] {
			rest = append(rest, a)
		}
	}
	sort.SliceStable(rest, func(i, j int) bool { return rest[i].Position < rest[j].Position })
	for _, a := range rest {
		out = append(out, a.URLHD)
	}
	return out
}

func filter(assets []models.ImageAsset, keep func(models.ImageAsset) bool) []models.ImageAsset {
	var out []models.ImageAsset
	for _, a := range assets {
		if keep(a) {
			out = append(out, a)
		}
	}
	return out
}
