package models

import "time"

// EntityType names the kind of entity an image belongs to.
type EntityType string

const (
	EntityInspection EntityType = "INSPECTION"
	EntityNCR        EntityType = "NCR"
	EntityDefect     EntityType = "DEFECT"
	EntityUser       EntityType = "USER"
	EntityComment    EntityType = "COMMENT"
)

// ImageRole distinguishes evidence images from previews.
type ImageRole string

const (
	RoleEvidence ImageRole = "EVIDENCE"
	RolePreview  ImageRole = "PREVIEW"
)

// Document slots used as RelatedItemID for document-class images.
const (
	SlotDeliveryNote   = "DELIVERY_NOTE"
	SlotSupplierReport = "SUPPLIER_REPORT"
)

// ImageAsset is an image payload off-loaded from its owning document.
type ImageAsset struct {
	ID             string  `gorm:"primaryKey;size:64"`
	ParentEntityID string  `gorm:"size:64;not null;index"`
	RelatedItemID  *string `gorm:"size:128;index"`
	EntityType     string  `gorm:"size:16;not null"`
	Role           string  `gorm:"column:image_role;size:16;not null"`
	// size above the varchar limits maps to text on postgres and sqlite and longtext on mysql.
	URLHD        string `gorm:"column:url_hd;size:4294967295"`
	URLThumbnail string `gorm:"column:url_thumbnail;size:4294967295"`
	Position     int    `gorm:"default:0"`
	CreatedAt    time.Time
}

// TableName pins the shared image table name.
func (ImageAsset) TableName() string { return "qms_images" }

// ItemKey returns the related item id, or "" for record-level images.
func (a ImageAsset) ItemKey() string {
	if a.RelatedItemID == nil {
		return ""
	}
	return *a.RelatedItemID
}
