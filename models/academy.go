package models

import (
	"time"

	"github.com/google/uuid"
)

// Academy represents a tenant in the multi-tenant system
type Academy struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Slug      string    `json:"slug" db:"slug"` // URL-friendly identifier
	OwnerUID  string    `json:"ownerUid" db:"owner_uid"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// TableName returns the table name for the Academy model
func (Academy) TableName() string {
	return "academies"
}

// NewAcademy creates a new Academy instance
func NewAcademy(name, slug, ownerUID string) *Academy {
	now := time.Now()
	return &Academy{
		ID:        uuid.New(),
		Name:      name,
		Slug:      slug,
		OwnerUID:  ownerUID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
