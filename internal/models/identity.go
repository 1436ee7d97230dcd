package models

// Role is the caller's role as resolved by the authentication layer.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
	RoleQA      Role = "QA"
	RoleQC      Role = "QC"
)

// Identity is the opaque caller identity handed to the persistence layer.
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role Role   `json:"role,omitempty"`
}

// Elevated reports whether the identity may approve and close NCRs.
func (i Identity) Elevated() bool {
	return i.Role == RoleAdmin || i.Role == RoleManager
}
