package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserRole is the role of a tenant member
type UserRole string

const (
	UserRoleAdmin       UserRole = "ADMIN"
	UserRoleRecruiter   UserRole = "RECRUITER"
	UserRoleInterviewer UserRole = "INTERVIEWER"
)

// UserStatus is the account state of a tenant member
type UserStatus string

const (
	UserStatusActive   UserStatus = "ACTIVE"
	UserStatusInactive UserStatus = "INACTIVE"
	UserStatusInvited  UserStatus = "INVITED"
)

// User is a member of a tenant: recruiter, interviewer or admin
type User struct {
	ID       uint       `gorm:"primaryKey" json:"id"`
	UUID     uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_users_uuid" json:"uuid"`
	TenantID uint       `gorm:"not null;index:idx_users_tenant_id" json:"tenant_id"`
	Name     string     `gorm:"size:255;not null" json:"name"`
	Email    string     `gorm:"size:255;not null" json:"email"`
	Phone    *string    `gorm:"size:32" json:"phone,omitempty"`
	Role     UserRole   `gorm:"size:32;not null;default:'RECRUITER'" json:"role"`
	Status   UserStatus `gorm:"size:16;not null;default:'ACTIVE'" json:"status"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (User) TableName() string { return "users" }

// BeforeCreate ensures UUID is set
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.UUID == uuid.Nil {
		u.UUID = uuid.New()
	}
	return nil
}

// IsActive reports whether the user can receive messages
func (u User) IsActive() bool {
	return u.Status == UserStatusActive
}

// UserFilter provides filter fields for repository queries
type UserFilter struct {
	ID       *uint
	UUID     *uuid.UUID
	TenantID *uint
	Email    *string
	Role     *UserRole
	Status   *UserStatus
}
