package models

import (
	"time"
)

// AutomationTrigger is a named domain event type that automation rules bind to
type AutomationTrigger string

const (
	TriggerInterviewScheduled   AutomationTrigger = "INTERVIEW_SCHEDULED"
	TriggerInterviewRescheduled AutomationTrigger = "INTERVIEW_RESCHEDULED"
	TriggerInterviewCancelled   AutomationTrigger = "INTERVIEW_CANCELLED"
	TriggerInterviewReminder24H AutomationTrigger = "INTERVIEW_REMINDER_24H"
	TriggerInterviewReminder1H  AutomationTrigger = "INTERVIEW_REMINDER_1H"
	TriggerCandidateCreated     AutomationTrigger = "CANDIDATE_CREATED"
	TriggerCandidateStageChange AutomationTrigger = "CANDIDATE_STAGE_CHANGED"
	TriggerFeedbackSubmitted    AutomationTrigger = "FEEDBACK_SUBMITTED"
)

// AllAutomationTriggers lists every supported trigger
var AllAutomationTriggers = []AutomationTrigger{
	TriggerInterviewScheduled,
	TriggerInterviewRescheduled,
	TriggerInterviewCancelled,
	TriggerInterviewReminder24H,
	TriggerInterviewReminder1H,
	TriggerCandidateCreated,
	TriggerCandidateStageChange,
	TriggerFeedbackSubmitted,
}

// Valid reports whether the trigger is known
func (t AutomationTrigger) Valid() bool {
	for _, known := range AllAutomationTriggers {
		if t == known {
			return true
		}
	}
	return false
}

// ReminderOffset returns how long before the interview a reminder trigger fires.
// The second result is false for non-reminder triggers.
func (t AutomationTrigger) ReminderOffset() (time.Duration, bool) {
	switch t {
	case TriggerInterviewReminder24H:
		return 24 * time.Hour, true
	case TriggerInterviewReminder1H:
		return time.Hour, true
	}
	return 0, false
}

// IsInterviewScoped reports whether the trigger context refers to an interview
func (t AutomationTrigger) IsInterviewScoped() bool {
	switch t {
	case TriggerInterviewScheduled, TriggerInterviewRescheduled, TriggerInterviewCancelled,
		TriggerInterviewReminder24H, TriggerInterviewReminder1H:
		return true
	}
	return false
}

// AutomationRule binds a trigger to a template on one channel for a tenant
type AutomationRule struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	TenantID     uint              `gorm:"not null;uniqueIndex:idx_automation_rules_tenant_trigger_channel,priority:1" json:"tenant_id"`
	Name         string            `gorm:"size:255;not null" json:"name"`
	Trigger      AutomationTrigger `gorm:"size:64;not null;uniqueIndex:idx_automation_rules_tenant_trigger_channel,priority:2" json:"trigger"`
	Channel      MessageChannel    `gorm:"size:16;not null;uniqueIndex:idx_automation_rules_tenant_trigger_channel,priority:3" json:"channel"`
	TemplateID   uint              `gorm:"not null;index:idx_automation_rules_template_id" json:"template_id"`
	DelayMinutes int               `gorm:"not null;default:0" json:"delay_minutes"`
	Conditions   JSONMap           `gorm:"type:jsonb" json:"conditions,omitempty"`
	IsActive     *bool             `gorm:"default:true;index:idx_automation_rules_is_active" json:"is_active"`
	CreatedBy    *uint             `json:"created_by,omitempty"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`

	// Relations
	Template *Template `gorm:"foreignKey:TemplateID;references:ID;constraint:OnDelete:RESTRICT" json:"template,omitempty"`
}

func (AutomationRule) TableName() string { return "automation_rules" }

// AutomationRuleFilter provides filter fields for repository queries
type AutomationRuleFilter struct {
	ID         *uint
	TenantID   *uint
	Trigger    *AutomationTrigger
	Channel    *MessageChannel
	TemplateID *uint
	IsActive   *bool
}
