package models

import "fmt"

// Role is the authorization role of a user profile
type Role string

const (
	RoleSuperAdmin Role = "super-admin"
	RoleOwner      Role = "owner"
	RoleCoach      Role = "coach"
)

// Roles returns every known role
func Roles() []Role {
	return []Role{RoleSuperAdmin, RoleOwner, RoleCoach}
}

// ParseRole converts a raw string into a Role, rejecting unknown values
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.IsValid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// IsValid returns true if the role is one of the known roles
func (r Role) IsValid() bool {
	switch r {
	case RoleSuperAdmin, RoleOwner, RoleCoach:
		return true
	}
	return false
}

// HomePath returns the dashboard path for the role, or "" for unknown roles
func (r Role) HomePath() string {
	if !r.IsValid() {
		return ""
	}
	return "/" + string(r) + "/dashboard"
}

func (r Role) String() string {
	return string(r)
}
