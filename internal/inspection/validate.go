package inspection

import (
	"errors"
	"fmt"
	"strings"

	"github.com/isoqms/qms/internal/images"
	"github.com/isoqms/qms/internal/models"
)

// ErrNotFound is returned when no inspection has the requested id.
var ErrNotFound = errors.New("inspection: not found")

// FieldError describes one rejected field of a record.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError is returned by Save before any store call when the record
// is malformed.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Message)
	}
	return "inspection: invalid record: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, format string, args ...interface{}) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Validate checks the fields Save requires. Image keys are item ids, so any
// item carrying an inline image must have a unique id that does not collide
// with a slot or material key.
func Validate(rec *models.Inspection) error {
	if rec == nil {
		return &ValidationError{Fields: []FieldError{{Field: "record", Message: "is required"}}}
	}

	v := &ValidationError{}
	if strings.TrimSpace(rec.ID) == "" {
		v.add("id", "is required")
	}
	if strings.TrimSpace(string(rec.Type)) == "" {
		v.add("type", "is required")
	}
	if strings.TrimSpace(rec.ProjectCode) == "" {
		v.add("projectCode", "is required")
	}
	if strings.TrimSpace(rec.Inspector) == "" {
		v.add("inspector", "is required")
	}
	validateItems(v, "items", rec.Items)
	for i, it := range rec.Items {
		if images.Reserved(it.ID) {
			v.add(fmt.Sprintf("items[%d].id", i), "%q is reserved", it.ID)
		}
	}

	if m := rec.Material; m != nil {
		seen := make(map[string]bool)
		for i, mat := range m.Materials {
			field := fmt.Sprintf("material.materials[%d]", i)
			if mat.ID == "" && hasInline(mat.Images) {
				v.add(field+".id", "is required for materials with images")
			}
			if strings.Contains(mat.ID, "/") {
				v.add(field+".id", "must not contain '/'")
			}
			if mat.ID != "" && seen[mat.ID] {
				v.add(field+".id", "duplicates %q", mat.ID)
			}
			seen[mat.ID] = true
			validateItems(v, field+".items", mat.Items)
		}
	}

	if len(v.Fields) > 0 {
		return v
	}
	return nil
}

func validateItems(v *ValidationError, field string, items []models.CheckItem) {
	seen := make(map[string]bool)
	for i, it := range items {
		if it.ID == "" {
			if hasInline(it.Images) {
				v.add(fmt.Sprintf("%s[%d].id", field, i), "is required for items with images")
			}
			continue
		}
		if seen[it.ID] {
			v.add(fmt.Sprintf("%s[%d].id", field, i), "duplicates %q", it.ID)
		}
		seen[it.ID] = true
	}
}

func hasInline(imgs []string) bool {
	for _, img := range imgs {
		if images.IsInline(img) {
			return true
		}
	}
	return false
}
