package models

import (
	"time"
)

// InterviewType describes how an interview is held
type InterviewType string

const (
	InterviewTypeVideo  InterviewType = "VIDEO"
	InterviewTypePhone  InterviewType = "PHONE"
	InterviewTypeOnsite InterviewType = "ONSITE"
)

// InterviewStatus is the state of an interview
type InterviewStatus string

const (
	InterviewStatusScheduled InterviewStatus = "SCHEDULED"
	InterviewStatusCompleted InterviewStatus = "COMPLETED"
	InterviewStatusCancelled InterviewStatus = "CANCELLED"
)

// Interview is a scheduled meeting between a candidate and an interviewer
type Interview struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	TenantID        uint            `gorm:"not null;index:idx_interviews_tenant_id" json:"tenant_id"`
	CandidateID     uint            `gorm:"not null;index:idx_interviews_candidate_id" json:"candidate_id"`
	InterviewerID   *uint           `gorm:"index:idx_interviews_interviewer_id" json:"interviewer_id,omitempty"`
	Title           string          `gorm:"size:255;not null" json:"title"`
	Type            InterviewType   `gorm:"size:16;not null;default:'VIDEO'" json:"type"`
	Status          InterviewStatus `gorm:"size:16;not null;default:'SCHEDULED'" json:"status"`
	ScheduledAt     time.Time       `gorm:"not null" json:"scheduled_at"`
	DurationMinutes int             `gorm:"not null;default:60" json:"duration_minutes"`
	Location        *string         `gorm:"size:255" json:"location,omitempty"`
	MeetingLink     *string         `gorm:"size:512" json:"meeting_link,omitempty"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`

	// Relations
	Candidate   *Candidate `gorm:"foreignKey:CandidateID;references:ID" json:"candidate,omitempty"`
	Interviewer *User      `gorm:"foreignKey:InterviewerID;references:ID" json:"interviewer,omitempty"`
}

func (Interview) TableName() string { return "interviews" }

// InterviewFilter provides filter fields for repository queries
type InterviewFilter struct {
	ID              *uint
	TenantID        *uint
	CandidateID     *uint
	InterviewerID   *uint
	Status          *InterviewStatus
	ScheduledAfter  *time.Time
	ScheduledBefore *time.Time
}
