package model

import (
	"time"

	"github.com/google/uuid"
)

// EntityKind represents the kind of a canonical entity
type EntityKind string

const (
	EntityKindCompany EntityKind = "company"
	EntityKindPerson  EntityKind = "person"
)

// Company represents a canonical company entity.
// At most one company exists per distinct URL or LinkedIn URL.
type Company struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	URL         *string   `json:"url,omitempty"`
	LinkedInURL *string   `json:"linkedin_url,omitempty"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Person represents a canonical person entity.
// At most one person exists per distinct email or LinkedIn URL.
// CompanyID is a weak employer reference, filled in as resolution learns it.
type Person struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Email       *string    `json:"email,omitempty"`
	LinkedInURL *string    `json:"linkedin_url,omitempty"`
	CompanyID   *uuid.UUID `json:"company_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// EntityRef is a resolved reference to a canonical entity
type EntityRef struct {
	ID   uuid.UUID  `json:"id"`
	Kind EntityKind `json:"kind"`
	Name string     `json:"name"`
}
