package models

import "fmt"

// RecordType is the discriminator that selects an inspection's storage table
// and extra field set. It is fixed when the inspection is created.
type RecordType string

const (
	TypePQC    RecordType = "PQC"
	TypeIQC    RecordType = "IQC"
	TypeSQCMat RecordType = "SQC_MAT"
	TypeSQCBTP RecordType = "SQC_BTP"
	TypeFSR    RecordType = "FSR"
	TypeStep   RecordType = "STEP"
	TypeFQC    RecordType = "FQC"
	TypeSPR    RecordType = "SPR"
	TypeSite   RecordType = "SITE"
	TypeSQCVT  RecordType = "SQC_VT"
)

// AllRecordTypes returns every known record type in declaration order.
func AllRecordTypes() []RecordType {
	return []RecordType{
		TypePQC, TypeIQC, TypeSQCMat, TypeSQCBTP, TypeFSR,
		TypeStep, TypeFQC, TypeSPR, TypeSite, TypeSQCVT,
	}
}

// Known reports whether t is one of the closed set of record types.
func (t RecordType) Known() bool {
	for _, k := range AllRecordTypes() {
		if t == k {
			return true
		}
	}
	return false
}

// ParseRecordType converts s into a known RecordType.
func ParseRecordType(s string) (RecordType, error) {
	t := RecordType(s)
	if !t.Known() {
		return "", fmt.Errorf("models: unknown record type %q", s)
	}
	return t, nil
}

// InspectionStatus is the workflow status of an inspection.
type InspectionStatus string

const (
	StatusDraft     InspectionStatus = "DRAFT"
	StatusPending   InspectionStatus = "PENDING"
	StatusCompleted InspectionStatus = "COMPLETED"
	StatusFlagged   InspectionStatus = "FLAGGED"
	StatusApproved  InspectionStatus = "APPROVED"
)

// CheckStatus is the outcome of a single check item.
type CheckStatus string

const (
	CheckPending     CheckStatus = "PENDING"
	CheckPass        CheckStatus = "PASS"
	CheckFail        CheckStatus = "FAIL"
	CheckNA          CheckStatus = "NA"
	CheckConditional CheckStatus = "CONDITIONAL"
)
