package models

import (
	"time"

	"gorm.io/datatypes"
)

// Severity grades a non-conformance.
type Severity string

const (
	SeverityMinor    Severity = "MINOR"
	SeverityMajor    Severity = "MAJOR"
	SeverityCritical Severity = "CRITICAL"
)

// NCRStatus is the lifecycle state of a non-conformance. CLOSED is terminal.
type NCRStatus string

const (
	NCROpen       NCRStatus = "OPEN"
	NCRInProgress NCRStatus = "IN_PROGRESS"
	NCRClosed     NCRStatus = "CLOSED"
)

// NonConformance is a quality deviation raised from a failed check item.
type NonConformance struct {
	ID                string     `json:"id"`
	InspectionID      string     `json:"inspectionId,omitempty"`
	ItemID            string     `json:"itemId,omitempty"`
	DefectCode        string     `json:"defectCode,omitempty"`
	Severity          Severity   `json:"severity,omitempty"`
	Status            NCRStatus  `json:"status,omitempty"`
	Description       string     `json:"description,omitempty"`
	RootCause         string     `json:"rootCause,omitempty"`
	CorrectiveAction  string     `json:"correctiveAction,omitempty"`
	PreventiveAction  string     `json:"preventiveAction,omitempty"`
	ResponsiblePerson string     `json:"responsiblePerson,omitempty"`
	Deadline          string     `json:"deadline,omitempty"`
	ImagesBefore      []string   `json:"imagesBefore,omitempty"`
	ImagesAfter       []string   `json:"imagesAfter,omitempty"`
	Comments          []Comment  `json:"comments,omitempty"`
	CreatedBy         string     `json:"createdBy,omitempty"`
	ClosedBy          string     `json:"closedBy,omitempty"`
	ClosedAt          *time.Time `json:"closedAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// Comment is one entry of an NCR discussion thread.
type Comment struct {
	ID          string    `json:"id"`
	AuthorID    string    `json:"authorId"`
	AuthorName  string    `json:"authorName,omitempty"`
	Text        string    `json:"text"`
	Attachments []string  `json:"attachments,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NCRRecord is the stored row of a non-conformance. Before/after images and
// comments are kept inline as JSON arrays.
type NCRRecord struct {
	ID                string                          `gorm:"primaryKey;size:64"`
	InspectionID      string                          `gorm:"size:64;index"`
	ItemID            string                          `gorm:"size:64"`
	DefectCode        string                          `gorm:"size:64"`
	Severity          string                          `gorm:"size:16"`
	Status            string                          `gorm:"size:16;default:OPEN;index"`
	Description       string                          `gorm:"type:text"`
	RootCause         string                          `gorm:"type:text"`
	CorrectiveAction  string                          `gorm:"type:text"`
	PreventiveAction  string                          `gorm:"type:text"`
	ResponsiblePerson string                          `gorm:"size:128"`
	Deadline          string                          `gorm:"size:32"`
	ImagesBefore      datatypes.JSONType[[]string]    `gorm:"column:images_before"`
	ImagesAfter       datatypes.JSONType[[]string]    `gorm:"column:images_after"`
	Comments          datatypes.JSONType[[]Comment]   `gorm:"column:comments"`
	CreatedBy         string                          `gorm:"size:64"`
	ClosedBy          string                          `gorm:"size:64"`
	ClosedAt          *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TableName pins the shared NCR table name.
func (NCRRecord) TableName() string { return "qms_ncrs" }
