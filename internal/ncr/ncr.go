// Package ncr persists non-conformance reports raised from failed inspection
// check items and manages their lifecycle after creation.
package ncr

import (
	"errors"

	"github.com/isoqms/qms/internal/models"
	"gorm.io/datatypes"
)

var (
	// ErrNotFound is returned when no NCR has the requested id.
	ErrNotFound = errors.New("ncr: not found")
	// ErrLocked is returned when changing an NCR that is CLOSED.
	ErrLocked = errors.New("ncr: closed")
	// ErrForbidden is returned when a non-elevated identity tries to approve.
	ErrForbidden = errors.New("ncr: approval requires an elevated role")
)

// UnknownItem is the item id of an NCR not tied to a check item.
const UnknownItem = "unknown"

// DefaultID derives the NCR id used when the payload carries none. It is
// stable across saves of the same inspection item.
func DefaultID(inspectionID, itemID string) string {
	return "NCR-" + inspectionID + "-" + itemID
}

// DeriveStatus returns the status an NCR takes on a non-administrative save:
// CLOSED stays CLOSED, otherwise IN_PROGRESS once remediation images exist
// and OPEN before that.
func DeriveStatus(current models.NCRStatus, imagesAfter []string) models.NCRStatus {
	if current == models.NCRClosed {
		return models.NCRClosed
	}
	for _, img := range imagesAfter {
		if img != "" {
			return models.NCRInProgress
		}
	}
	return models.NCROpen
}

func toRecord(n models.NonConformance) models.NCRRecord {
	return models.NCRRecord{
		ID:                n.ID,
		InspectionID:      n.InspectionID,
		ItemID:            n.ItemID,
		DefectCode:        n.DefectCode,
		Severity:          string(n.Severity),
		Status:            string(n.Status),
		Description:       n.Description,
		RootCause:         n.RootCause,
		CorrectiveAction:  n.CorrectiveAction,
		PreventiveAction:  n.PreventiveAction,
		ResponsiblePerson: n.ResponsiblePerson,
		Deadline:          n.Deadline,
		ImagesBefore:      datatypes.NewJSONType(nonNil(n.ImagesBefore)),
		ImagesAfter:       datatypes.NewJSONType(nonNil(n.ImagesAfter)),
		Comments:          datatypes.NewJSONType(nonNilComments(n.Comments)),
		CreatedBy:         n.CreatedBy,
		ClosedBy:          n.ClosedBy,
		ClosedAt:          n.ClosedAt,
		CreatedAt:         n.CreatedAt,
		UpdatedAt:         n.UpdatedAt,
	}
}

// projectedValues is the update set of a projection or edit. Creation
// metadata, closure fields and the comment thread are owned by the NCR's own
// lifecycle and never replaced from the inspection payload.
func projectedValues(r models.NCRRecord) map[string]interface{} {
	return map[string]interface{}{
		"inspection_id":      r.InspectionID,
		"item_id":            r.ItemID,
		"defect_code":        r.DefectCode,
		"severity":           r.Severity,
		"status":             r.Status,
		"description":        r.Description,
		"root_cause":         r.RootCause,
		"corrective_action":  r.CorrectiveAction,
		"preventive_action":  r.PreventiveAction,
		"responsible_person": r.ResponsiblePerson,
		"deadline":           r.Deadline,
		"images_before":      r.ImagesBefore,
		"images_after":       r.ImagesAfter,
		"updated_at":         r.UpdatedAt,
	}
}

func toDomain(r models.NCRRecord) models.NonConformance {
	return models.NonConformance{
		ID:                r.ID,
		InspectionID:      r.InspectionID,
		ItemID:            r.ItemID,
		DefectCode:        r.DefectCode,
		Severity:          models.Severity(r.Severity),
		Status:            models.NCRStatus(r.Status),
		Description:       r.Description,
		RootCause:         r.RootCause,
		CorrectiveAction:  r.CorrectiveAction,
		PreventiveAction:  r.PreventiveAction,
		ResponsiblePerson: r.ResponsiblePerson,
		Deadline:          r.Deadline,
		ImagesBefore:      r.ImagesBefore.Data(),
		ImagesAfter:       r.ImagesAfter.Data(),
		Comments:          r.Comments.Data(),
		CreatedBy:         r.CreatedBy,
		ClosedBy:          r.ClosedBy,
		ClosedAt:          r.ClosedAt,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func nonNil(s []string) []string {
	out := make([]string, 0, len(s))
	for _, v := range s {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func nonNilComments(c []models.Comment) []models.Comment {
	if c == nil {
		return []models.Comment{}
	}
	return c
}
