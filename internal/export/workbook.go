// Package export writes inspection summaries and NCRs to xlsx workbooks.
package export

import (
	"fmt"
	"time"

	"github.com/isoqms/qms/internal/inspection"
	"github.com/isoqms/qms/internal/models"
	"github.com/xuri/excelize/v2"
)

// Sheet names.
const (
	InspectionSheet = "Inspections"
	NCRSheet        = "NCRs"
)

var inspectionHeaders = []interface{}{
	"ID", "Type", "Project Code", "Project Name", "Item", "Inspector", "Status", "Date", "Score", "Updated",
}

var ncrHeaders = []interface{}{
	"ID", "Inspection", "Item", "Severity", "Status", "Description", "Root Cause",
	"Corrective Action", "Responsible", "Deadline", "Created By", "Closed By", "Closed At",
}

// Workbook builds a workbook with one row per summary. When ncrs is non-nil a
// second sheet lists them.
func Workbook(summaries []inspection.Summary, ncrs []models.NonConformance) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", InspectionSheet); err != nil {
		return nil, fmt.Errorf("export: rename sheet: %w", err)
	}

	if err := f.SetSheetRow(InspectionSheet, "A1", &inspectionHeaders); err != nil {
		return nil, fmt.Errorf("export: write header: %w", err)
	}
	for i, s := range summaries {
		row := []interface{}{
			s.ID, s.Type, s.ProjectCode, s.ProjectName, s.ItemTitle, s.Inspector,
			s.Status, s.Date, s.Score, formatTime(s.UpdatedAt),
		}
		if err := setRow(f, InspectionSheet, i+2, row); err != nil {
			return nil, err
		}
	}

	if ncrs != nil {
		if _, err := f.NewSheet(NCRSheet); err != nil {
			return nil, fmt.Errorf("export: add sheet: %w", err)
		}
		if err := f.SetSheetRow(NCRSheet, "A1", &ncrHeaders); err != nil {
			return nil, fmt.Errorf("export: write header: %w", err)
		}
		for i, n := range ncrs {
			closedAt := ""
			if n.ClosedAt != nil {
				closedAt = formatTime(*n.ClosedAt)
			}
			row := []interface{}{
				n.ID, n.InspectionID, n.ItemID, string(n.Severity), string(n.Status), n.Description,
				n.RootCause, n.CorrectiveAction, n.ResponsiblePerson, n.Deadline, n.CreatedBy, n.ClosedBy, closedAt,
			}
			if err := setRow(f, NCRSheet, i+2, row); err != nil {
				return nil, err
			}
		}
	}
	return f, nil
}

func setRow(f *excelize.File, sheet string, n int, row []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return fmt.Errorf("export: cell name: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &row); err != nil {
		return fmt.Errorf("export: write %s row %d: %w", sheet, n, err)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
