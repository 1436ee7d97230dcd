package models

import (
	"time"

	"gorm.io/datatypes"
)

// FormBootstrap is the shape a form table is created with before any
// migration step adds columns to it.
type FormBootstrap struct {
	ID        string `gorm:"primaryKey;size:64"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FormCommon holds the columns every form table carries. Items and image
// references are stored as JSON documents; everything else is typed.
type FormCommon struct {
	ID             string                          `gorm:"primaryKey;size:64"`
	Type           string                          `gorm:"column:type;size:16"`
	ProjectCode    string                          `gorm:"column:project_code;size:64"`
	ProjectName    string                          `gorm:"column:project_name;size:255"`
	ItemTitle      string                          `gorm:"column:item_title;size:255"`
	Inspector      string                          `gorm:"column:inspector;size:128"`
	Status         string                          `gorm:"column:status;size:16"`
	InspectionDate string                          `gorm:"column:inspection_date;size:32"`
	Score          int                             `gorm:"column:score"`
	Summary        string                          `gorm:"column:summary;type:text"`
	Items          datatypes.JSONType[[]CheckItem] `gorm:"column:items"`
	Signature      string                          `gorm:"column:signature;type:text"`
	ImageRefs      datatypes.JSONType[[]string]    `gorm:"column:image_refs"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ProductionForm is a row of a production-family table (PQC, FQC, FSR, STEP, SPR).
type ProductionForm struct {
	FormCommon
	Workshop              string  `gorm:"column:workshop;size:128"`
	Stage                 string  `gorm:"column:stage;size:128"`
	Unit                  string  `gorm:"column:unit;size:32"`
	PlannedQty            float64 `gorm:"column:planned_qty"`
	InspectedQty          float64 `gorm:"column:inspected_qty"`
	PassedQty             float64 `gorm:"column:passed_qty"`
	FailedQty             float64 `gorm:"column:failed_qty"`
	ProductionSignature   string  `gorm:"column:production_signature;type:text"`
	ProductionName        string  `gorm:"column:production_name;size:128"`
	ProductionComment     string  `gorm:"column:production_comment;type:text"`
	ProductionConfirmedAt string  `gorm:"column:production_confirmed_at;size:32"`
	ManagerSignature      string  `gorm:"column:manager_signature;type:text"`
	ManagerName           string  `gorm:"column:manager_name;size:128"`
	ManagerComment        string  `gorm:"column:manager_comment;type:text"`
}

// MaterialForm is a row of a material-family table (IQC, SQC_MAT/SQC_VT, SQC_BTP).
type MaterialForm struct {
	FormCommon
	PONumber           string                              `gorm:"column:po_number;size:64"`
	Supplier           string                              `gorm:"column:supplier;size:255"`
	SupplierAddress    string                              `gorm:"column:supplier_address;type:text"`
	Location           string                              `gorm:"column:location;size:255"`
	Materials          datatypes.JSONType[[]Material]      `gorm:"column:materials"`
	ReferenceDocs      datatypes.JSONType[[]string]        `gorm:"column:reference_docs"`
	SupportingDocs     datatypes.JSONType[[]SupportingDoc] `gorm:"column:supporting_docs"`
	DeliveryNoteRefs   datatypes.JSONType[[]string]        `gorm:"column:delivery_note_refs"`
	SupplierReportRefs datatypes.JSONType[[]string]        `gorm:"column:supplier_report_refs"`
}

// SiteForm is a row of the site-inspection table.
type SiteForm struct {
	FormCommon
	Location          string  `gorm:"column:location;size:255"`
	ResponsiblePerson string  `gorm:"column:responsible_person;size:128"`
	FloorPlanID       string  `gorm:"column:floor_plan_id;size:64"`
	CoordX            float64 `gorm:"column:coord_x"`
	CoordY            float64 `gorm:"column:coord_y"`
	Priority          string  `gorm:"column:priority;size:16"`
}

// InspectionIndex is the master index row mapping an inspection id to its
// record type and table. It also carries the list projection.
type InspectionIndex struct {
	ID             string `gorm:"primaryKey;size:64"`
	Type           string `gorm:"size:16;index"`
	FormTable      string `gorm:"column:form_table;size:64"`
	ProjectCode    string `gorm:"size:64;index"`
	ProjectName    string `gorm:"size:255"`
	ItemTitle      string `gorm:"size:255"`
	Inspector      string `gorm:"size:128"`
	Status         string `gorm:"size:16;index"`
	InspectionDate string `gorm:"size:32"`
	Score          int
	CreatedAt      time.Time
	UpdatedAt      time.Time `gorm:"index"`
}

// TableName pins the master index table name.
func (InspectionIndex) TableName() string { return "qms_inspection_index" }

// SchemaVersion records the last migration step applied to a form table.
type SchemaVersion struct {
	FormTable string `gorm:"column:form_table;primaryKey;size:64"`
	Version   int    `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

// TableName pins the schema version table name.
func (SchemaVersion) TableName() string { return "qms_schema_versions" }
