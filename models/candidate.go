package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Candidate is a person moving through a tenant's hiring pipeline
type Candidate struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UUID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_candidates_uuid" json:"uuid"`
	TenantID  uint      `gorm:"not null;index:idx_candidates_tenant_id" json:"tenant_id"`
	FirstName string    `gorm:"size:128;not null" json:"first_name"`
	LastName  string    `gorm:"size:128" json:"last_name"`
	Email     *string   `gorm:"size:255" json:"email,omitempty"`
	Phone     *string   `gorm:"size:32" json:"phone,omitempty"`
	Stage     string    `gorm:"size:64" json:"stage"`
	Position  *string   `gorm:"size:255" json:"position,omitempty"`

	CreatedAt time.Time      `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time      `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Candidate) TableName() string { return "candidates" }

// BeforeCreate ensures UUID is set
func (c *Candidate) BeforeCreate(tx *gorm.DB) error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	return nil
}

// FullName joins first and last name
func (c Candidate) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// CandidateFilter provides filter fields for repository queries
type CandidateFilter struct {
	ID       *uint
	UUID     *uuid.UUID
	TenantID *uint
	Email    *string
	Stage    *string
}
