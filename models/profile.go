package models

import (
	"time"

	"github.com/google/uuid"
)

// Profile is the per-user record consulted for authorization decisions.
// It is keyed by the identity provider's subject id.
type Profile struct {
	UID         string     `json:"uid" db:"uid"`
	Email       string     `json:"email" db:"email"`
	DisplayName string     `json:"displayName,omitempty" db:"display_name"`
	Role        Role       `json:"role" db:"role"`
	AcademyID   *uuid.UUID `json:"academyId,omitempty" db:"academy_id"` // nil for super-admins
	CreatedAt   time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time  `json:"updatedAt" db:"updated_at"`
}

// TableName returns the table name for the Profile model
func (Profile) TableName() string {
	return "profiles"
}

// NewProfile creates a new Profile instance
func NewProfile(uid, email, displayName string, role Role) *Profile {
	now := time.Now()
	return &Profile{
		UID:         uid,
		Email:       email,
		DisplayName: displayName,
		Role:        role,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// WithAcademy links the profile to a tenant academy
func (p *Profile) WithAcademy(academyID uuid.UUID) *Profile {
	p.AcademyID = &academyID
	return p
}

// IsSuperAdmin returns true if the profile has the super-admin role
func (p *Profile) IsSuperAdmin() bool {
	return p.Role == RoleSuperAdmin
}
