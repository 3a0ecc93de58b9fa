package models

import (
	"time"
)

// Tenant is an organisation using the platform; it scopes every other record
type Tenant struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	Name        string  `gorm:"size:255;not null" json:"name"`
	Slug        string  `gorm:"size:128;not null;uniqueIndex:idx_tenants_slug" json:"slug"`
	Website     *string `gorm:"size:255" json:"website,omitempty"`
	Timezone    string  `gorm:"size:64;not null;default:'UTC'" json:"timezone"`
	SenderName  *string `gorm:"size:255" json:"sender_name,omitempty"`
	SenderEmail *string `gorm:"size:255" json:"sender_email,omitempty"`
	IsActive    *bool   `gorm:"default:true" json:"is_active"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (Tenant) TableName() string { return "tenants" }

// Location resolves the tenant timezone, falling back to UTC
func (t Tenant) Location() *time.Location {
	if t.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// TenantFilter provides filter fields for repository queries
type TenantFilter struct {
	ID       *uint
	Slug     *string
	IsActive *bool
}
