package models

import "time"

// Inspection is one inspection record as seen by callers. Exactly one of
// Production, Material or Site is persisted, chosen by the record type.
type Inspection struct {
	ID          string           `json:"id"`
	Type        RecordType       `json:"type"`
	ProjectCode string           `json:"projectCode"`
	ProjectName string           `json:"projectName,omitempty"`
	ItemTitle   string           `json:"itemTitle,omitempty"`
	Inspector   string           `json:"inspector"`
	Status      InspectionStatus `json:"status,omitempty"`
	Date        string           `json:"date,omitempty"`
	Score       int              `json:"score"`
	Summary     string           `json:"summary,omitempty"`
	Signature   string           `json:"signature,omitempty"`
	Items       []CheckItem      `json:"items,omitempty"`
	Images      []string         `json:"images,omitempty"`

	Production *ProductionDetails `json:"production,omitempty"`
	Material   *MaterialDetails   `json:"material,omitempty"`
	Site       *SiteDetails       `json:"site,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CheckItem is a single line of an inspection checklist.
type CheckItem struct {
	ID             string          `json:"id"`
	Stage          string          `json:"stage,omitempty"`
	Category       string          `json:"category,omitempty"`
	Label          string          `json:"label,omitempty"`
	Method         string          `json:"method,omitempty"`
	Standard       string          `json:"standard,omitempty"`
	Status         CheckStatus     `json:"status,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	Images         []string        `json:"images,omitempty"`
	DefectIDs      []string        `json:"defectIds,omitempty"`
	NCRID          string          `json:"ncrId,omitempty"`
	NonConformance *NonConformance `json:"nonConformance,omitempty"`
}

// ProductionDetails are the fields of production-line inspections (PQC and kin).
type ProductionDetails struct {
	Workshop              string  `json:"workshop,omitempty"`
	Stage                 string  `json:"stage,omitempty"`
	Unit                  string  `json:"unit,omitempty"`
	PlannedQty            float64 `json:"plannedQty"`
	InspectedQty          float64 `json:"inspectedQty"`
	PassedQty             float64 `json:"passedQty"`
	FailedQty             float64 `json:"failedQty"`
	ProductionSignature   string  `json:"productionSignature,omitempty"`
	ProductionName        string  `json:"productionName,omitempty"`
	ProductionComment     string  `json:"productionComment,omitempty"`
	ProductionConfirmedAt string  `json:"productionConfirmedAt,omitempty"`
	ManagerSignature      string  `json:"managerSignature,omitempty"`
	ManagerName           string  `json:"managerName,omitempty"`
	ManagerComment        string  `json:"managerComment,omitempty"`
}

// MaterialDetails are the fields of inbound/outbound material inspections.
type MaterialDetails struct {
	PONumber             string          `json:"poNumber,omitempty"`
	Supplier             string          `json:"supplier,omitempty"`
	SupplierAddress      string          `json:"supplierAddress,omitempty"`
	Location             string          `json:"location,omitempty"`
	Materials            []Material      `json:"materials,omitempty"`
	ReferenceDocs        []string        `json:"referenceDocs,omitempty"`
	SupportingDocs       []SupportingDoc `json:"supportingDocs,omitempty"`
	DeliveryNoteImages   []string        `json:"deliveryNoteImages,omitempty"`
	SupplierReportImages []string        `json:"supplierReportImages,omitempty"`
}

// Material is one delivered material line with its own checklist.
type Material struct {
	ID          string      `json:"id"`
	Name        string      `json:"name,omitempty"`
	Category    string      `json:"category,omitempty"`
	InspectType string      `json:"inspectType,omitempty"`
	Scope       string      `json:"scope,omitempty"`
	Unit        string      `json:"unit,omitempty"`
	OrderQty    float64     `json:"orderQty"`
	DeliveryQty float64     `json:"deliveryQty"`
	InspectQty  float64     `json:"inspectQty"`
	PassQty     float64     `json:"passQty"`
	FailQty     float64     `json:"failQty"`
	Items       []CheckItem `json:"items,omitempty"`
	Images      []string    `json:"images,omitempty"`
}

// SupportingDoc records whether a required document was presented.
type SupportingDoc struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Verified bool   `json:"verified"`
	Notes    string `json:"notes,omitempty"`
}

// SiteDetails are the fields of on-site installation inspections.
type SiteDetails struct {
	Location          string  `json:"location,omitempty"`
	ResponsiblePerson string  `json:"responsiblePerson,omitempty"`
	FloorPlanID       string  `json:"floorPlanId,omitempty"`
	CoordX            float64 `json:"coordX"`
	CoordY            float64 `json:"coordY"`
	Priority          string  `json:"priority,omitempty"`
}
