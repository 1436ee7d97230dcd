package inspection

import (
	"encoding/json"
	"fmt"

	"github.com/isoqms/qms/internal/models"
	"github.com/isoqms/qms/internal/router"
	"gorm.io/datatypes"
)

// toRow flattens rec into the row model of its family. Details of other
// families are not persisted.
func toRow(rec *models.Inspection, family router.Family) interface{} {
	common := models.FormCommon{
		ID:             rec.ID,
		Type:           string(rec.Type),
		ProjectCode:    rec.ProjectCode,
		ProjectName:    rec.ProjectName,
		ItemTitle:      rec.ItemTitle,
		Inspector:      rec.Inspector,
		Status:         string(rec.Status),
		InspectionDate: rec.Date,
		Score:          rec.Score,
		Summary:        rec.Summary,
		Items:          datatypes.NewJSONType(orEmpty(rec.Items)),
		Signature:      rec.Signature,
		ImageRefs:      datatypes.NewJSONType(orEmpty(rec.Images)),
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}

	switch family {
	case router.FamilyMaterial:
		m := rec.Material
		if m == nil {
			m = &models.MaterialDetails{}
		}
		return &models.MaterialForm{
			FormCommon:         common,
			PONumber:           m.PONumber,
			Supplier:           m.Supplier,
			SupplierAddress:    m.SupplierAddress,
			Location:           m.Location,
			Materials:          datatypes.NewJSONType(orEmpty(m.Materials)),
			ReferenceDocs:      datatypes.NewJSONType(orEmpty(m.ReferenceDocs)),
			SupportingDocs:     datatypes.NewJSONType(orEmpty(m.SupportingDocs)),
			DeliveryNoteRefs:   datatypes.NewJSONType(orEmpty(m.DeliveryNoteImages)),
			SupplierReportRefs: datatypes.NewJSONType(orEmpty(m.SupplierReportImages)),
		}
	case router.FamilySite:
		d := rec.Site
		if d == nil {
			d = &models.SiteDetails{}
		}
		return &models.SiteForm{
			FormCommon:        common,
			Location:          d.Location,
			ResponsiblePerson: d.ResponsiblePerson,
			FloorPlanID:       d.FloorPlanID,
			CoordX:            d.CoordX,
			CoordY:            d.CoordY,
			Priority:          d.Priority,
		}
	default:
		p := rec.Production
		if p == nil {
			p = &models.ProductionDetails{}
		}
		return &models.ProductionForm{
			FormCommon:            common,
			Workshop:              p.Workshop,
			Stage:                 p.Stage,
			Unit:                  p.Unit,
			PlannedQty:            p.PlannedQty,
			InspectedQty:          p.InspectedQty,
			PassedQty:             p.PassedQty,
			FailedQty:             p.FailedQty,
			ProductionSignature:   p.ProductionSignature,
			ProductionName:        p.ProductionName,
			ProductionComment:     p.ProductionComment,
			ProductionConfirmedAt: p.ProductionConfirmedAt,
			ManagerSignature:      p.ManagerSignature,
			ManagerName:           p.ManagerName,
			ManagerComment:        p.ManagerComment,
		}
	}
}

// fromRow is the inverse of toRow.
func fromRow(row interface{}) (*models.Inspection, error) {
	switch r := row.(type) {
	case *models.ProductionForm:
		rec := fromCommon(r.FormCommon)
		rec.Production = &models.ProductionDetails{
			Workshop:              r.Workshop,
			Stage:                 r.Stage,
			Unit:                  r.Unit,
			PlannedQty:            r.PlannedQty,
			InspectedQty:          r.InspectedQty,
			PassedQty:             r.PassedQty,
			FailedQty:             r.FailedQty,
			ProductionSignature:   r.ProductionSignature,
			ProductionName:        r.ProductionName,
			ProductionComment:     r.ProductionComment,
			ProductionConfirmedAt: r.ProductionConfirmedAt,
			ManagerSignature:      r.ManagerSignature,
			ManagerName:           r.ManagerName,
			ManagerComment:        r.ManagerComment,
		}
		return rec, nil
	case *models.MaterialForm:
		rec := fromCommon(r.FormCommon)
		rec.Material = &models.MaterialDetails{
			PONumber:             r.PONumber,
			Supplier:             r.Supplier,
			SupplierAddress:      r.SupplierAddress,
			Location:             r.Location,
			Materials:            r.Materials.Data(),
			ReferenceDocs:        r.ReferenceDocs.Data(),
			SupportingDocs:       r.SupportingDocs.Data(),
			DeliveryNoteImages:   r.DeliveryNoteRefs.Data(),
			SupplierReportImages: r.SupplierReportRefs.Data(),
		}
		return rec, nil
	case *models.SiteForm:
		rec := fromCommon(r.FormCommon)
		rec.Site = &models.SiteDetails{
			Location:          r.Location,
			ResponsiblePerson: r.ResponsiblePerson,
			FloorPlanID:       r.FloorPlanID,
			CoordX:            r.CoordX,
			CoordY:            r.CoordY,
			Priority:          r.Priority,
		}
		return rec, nil
	default:
		return nil, fmt.Errorf("inspection: unexpected row type %T", row)
	}
}

func fromCommon(c models.FormCommon) *models.Inspection {
	return &models.Inspection{
		ID:          c.ID,
		Type:        models.RecordType(c.Type),
		ProjectCode: c.ProjectCode,
		ProjectName: c.ProjectName,
		ItemTitle:   c.ItemTitle,
		Inspector:   c.Inspector,
		Status:      models.InspectionStatus(c.Status),
		Date:        c.InspectionDate,
		Score:       c.Score,
		Summary:     c.Summary,
		Signature:   c.Signature,
		Items:       c.Items.Data(),
		Images:      c.ImageRefs.Data(),
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func indexRow(rec *models.Inspection, table string) models.InspectionIndex {
	return models.InspectionIndex{
		ID:             rec.ID,
		Type:           string(rec.Type),
		FormTable:      table,
		ProjectCode:    rec.ProjectCode,
		ProjectName:    rec.ProjectName,
		ItemTitle:      rec.ItemTitle,
		Inspector:      rec.Inspector,
		Status:         string(rec.Status),
		InspectionDate: rec.Date,
		Score:          rec.Score,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
}

// clone deep-copies rec so a save never mutates the caller's value.
func clone(rec *models.Inspection) (*models.Inspection, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("inspection: copy record: %w", err)
	}
	var out models.Inspection
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("inspection: copy record: %w", err)
	}
	return &out, nil
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
