// Package router maps inspection record types to their physical tables and
// column sets.
package router

import "github.com/isoqms/qms/internal/models"

// Family groups record types that share a row shape.
type Family string

const (
	FamilyProduction Family = "production"
	FamilyMaterial   Family = "material"
	FamilySite       Family = "site"
)

// Physical form tables. SQC_MAT and SQC_VT are two historical names for the
// same inbound/outbound material shape and share one table.
const (
	TablePQC    = "forms_pqc"
	TableIQC    = "forms_iqc"
	TableSQCVT  = "forms_sqc_vt"
	TableSQCBTP = "forms_sqc_btp"
	TableFSR    = "forms_fsr"
	TableStep   = "forms_step"
	TableFQC    = "forms_fqc"
	TableSPR    = "forms_spr"
	TableSite   = "forms_site"
)

// CommonColumns are present on every form table, in migration order.
var CommonColumns = []string{
	"type", "project_code", "project_name", "item_title", "inspector",
	"status", "inspection_date", "score", "summary", "items", "signature",
	"image_refs",
}

// ProductionColumns are the type-specific columns of the production family.
var ProductionColumns = []string{
	"workshop", "stage", "unit",
	"planned_qty", "inspected_qty", "passed_qty", "failed_qty",
	"production_signature", "production_name", "production_comment", "production_confirmed_at",
	"manager_signature", "manager_name", "manager_comment",
}

// MaterialColumns are the type-specific columns of the material family.
var MaterialColumns = []string{
	"po_number", "supplier", "supplier_address", "location",
	"materials", "reference_docs", "supporting_docs",
	"delivery_note_refs", "supplier_report_refs",
}

// SiteColumns are the type-specific columns of the site family.
var SiteColumns = []string{
	"location", "responsible_person", "floor_plan_id", "coord_x", "coord_y", "priority",
}

// FieldSet is the column set serialized into a record type's row.
type FieldSet struct {
	Common       []string
	TypeSpecific []string
}

// All returns the common columns followed by the type-specific ones.
func (f FieldSet) All() []string {
	out := make([]string, 0, len(f.Common)+len(f.TypeSpecific))
	out = append(out, f.Common...)
	return append(out, f.TypeSpecific...)
}

// TableFor returns the physical table for t. Unknown types fall back to the
// PQC table so legacy rows stay readable.
func TableFor(t models.RecordType) string {
	switch t {
	case models.TypePQC:
		return TablePQC
	case models.TypeIQC:
		return TableIQC
	case models.TypeSQCMat, models.TypeSQCVT:
		return TableSQCVT
	case models.TypeSQCBTP:
		return TableSQCBTP
	case models.TypeFSR:
		return TableFSR
	case models.TypeStep:
		return TableStep
	case models.TypeFQC:
		return TableFQC
	case models.TypeSPR:
		return TableSPR
	case models.TypeSite:
		return TableSite
	default:
		return TablePQC
	}
}

// FamilyFor returns the row shape family for t.
func FamilyFor(t models.RecordType) Family {
	switch t {
	case models.TypeIQC, models.TypeSQCMat, models.TypeSQCVT, models.TypeSQCBTP:
		return FamilyMaterial
	case models.TypeSite:
		return FamilySite
	case models.TypePQC, models.TypeFQC, models.TypeFSR, models.TypeStep, models.TypeSPR:
		return FamilyProduction
	default:
		return FamilyProduction
	}
}

// FieldSetFor returns the columns written for t.
func FieldSetFor(t models.RecordType) FieldSet {
	return FieldSet{Common: CommonColumns, TypeSpecific: familyColumns(FamilyFor(t))}
}

func familyColumns(f Family) []string {
	switch f {
	case FamilyMaterial:
		return MaterialColumns
	case FamilySite:
		return SiteColumns
	default:
		return ProductionColumns
	}
}

// Tables returns each distinct physical table once, with the family of the
// record types routed to it, in record type declaration order.
func Tables() []TableRoute {
	seen := make(map[string]bool)
	var routes []TableRoute
	for _, t := range models.AllRecordTypes() {
		name := TableFor(t)
		if seen[name] {
			continue
		}
		seen[name] = true
		routes = append(routes, TableRoute{Table: name, Family: FamilyFor(t)})
	}
	return routes
}

// TableRoute pairs a physical table with its row family.
type TableRoute struct {
	Table  string
	Family Family
}

// RowModel returns a zero row of the family's GORM model, used for column
// lookups when migrating.
func RowModel(f Family) interface{} {
	switch f {
	case FamilyMaterial:
		return &models.MaterialForm{}
	case FamilySite:
		return &models.SiteForm{}
	default:
		return &models.ProductionForm{}
	}
}
