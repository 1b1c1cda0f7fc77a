package users

import "fmt"

// RoleType is the closed set of account roles known to the platform
type RoleType string

const (
	RoleAdmin      RoleType = "admin"      // Full system access and management
	RoleClient     RoleType = "client"     // Daycare manager, manages garderie operations and staff
	RoleRemplacant RoleType = "remplacant" // Substitute staff applying for positions
)

var roleLabels = map[RoleType]string{
	RoleAdmin:      "Administrator",
	RoleClient:     "Daycare Manager",
	RoleRemplacant: "Substitute Staff",
}

var roleDescriptions = map[RoleType]string{
	RoleAdmin:      "Full system access and management",
	RoleClient:     "Manage daycare operations and staff",
	RoleRemplacant: "Apply for substitute positions",
}

// ParseRole converts a raw role string into a RoleType
func ParseRole(s string) (RoleType, error) {
	r := RoleType(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

func (r RoleType) Valid() bool {
	_, ok := roleLabels[r]
	return ok
}

func (r RoleType) Label() string {
	if l, ok := roleLabels[r]; ok {
		return l
	}
	return string(r)
}

func (r RoleType) Description() string {
	return roleDescriptions[r]
}
