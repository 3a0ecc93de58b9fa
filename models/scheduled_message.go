package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ScheduledMessageStatus enumerates the lifecycle of a deferred send intent
type ScheduledMessageStatus string

const (
	ScheduledMessageStatusPending   ScheduledMessageStatus = "PENDING"
	ScheduledMessageStatusSent      ScheduledMessageStatus = "SENT"
	ScheduledMessageStatusCancelled ScheduledMessageStatus = "CANCELLED"
	ScheduledMessageStatusFailed    ScheduledMessageStatus = "FAILED"
)

// ScheduledPayload is the content snapshot captured when the message was scheduled.
// Subject and body are already rendered; Context is kept for auditing only.
type ScheduledPayload struct {
	Subject        *string        `json:"subject,omitempty"`
	Body           string         `json:"body"`
	RecipientEmail *string        `json:"recipient_email,omitempty"`
	RecipientPhone *string        `json:"recipient_phone,omitempty"`
	Context        map[string]any `json:"context,omitempty"`
	Trigger        *string        `json:"trigger,omitempty"`
	RuleID         *uint          `json:"rule_id,omitempty"`
}

// Value implements driver.Valuer
func (p ScheduledPayload) Value() (driver.Value, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (p *ScheduledPayload) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*p = ScheduledPayload{}
		return nil
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	default:
		return fmt.Errorf("unsupported payload source type %T", value)
	}
}

// ScheduledMessage is a deferred send intent. It becomes a MessageLog when the
// scheduler promotes it; only PENDING rows are eligible for promotion.
type ScheduledMessage struct {
	ID            uint                   `gorm:"primaryKey" json:"id"`
	UUID          uuid.UUID              `gorm:"type:uuid;not null;uniqueIndex:idx_scheduled_messages_uuid" json:"uuid"`
	TenantID      uint                   `gorm:"not null;index:idx_scheduled_messages_tenant_id" json:"tenant_id"`
	Channel       MessageChannel         `gorm:"size:16;not null" json:"channel"`
	RecipientType RecipientType          `gorm:"size:16;not null" json:"recipient_type"`
	RecipientID   string                 `gorm:"size:255;not null" json:"recipient_id"`
	TemplateID    *uint                  `json:"template_id,omitempty"`
	ScheduledFor  time.Time              `gorm:"not null;index:idx_scheduled_messages_due,priority:2" json:"scheduled_for"`
	Status        ScheduledMessageStatus `gorm:"size:16;not null;default:'PENDING';index:idx_scheduled_messages_due,priority:1" json:"status"`
	Payload       ScheduledPayload       `gorm:"type:jsonb;not null" json:"payload"`
	MessageLogID  *uint                  `json:"message_log_id,omitempty"`
	Error         *string                `gorm:"type:text" json:"error,omitempty"`
	ProcessedAt   *time.Time             `json:"processed_at,omitempty"`
	CreatedBy     *uint                  `json:"created_by,omitempty"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (ScheduledMessage) TableName() string { return "scheduled_messages" }

// BeforeCreate ensures UUID and timestamps are set
func (s *ScheduledMessage) BeforeCreate(tx *gorm.DB) error {
	if s.UUID == uuid.Nil {
		s.UUID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = utils.UTCNow()
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = s.CreatedAt
	}
	return nil
}

// ScheduledMessageFilter provides filter fields for repository queries
type ScheduledMessageFilter struct {
	ID              *uint
	TenantID        *uint
	Channel         *MessageChannel
	Status          *ScheduledMessageStatus
	ScheduledBefore *time.Time
	ScheduledAfter  *time.Time
}
