// Package models contains domain entities for the outbound communication dispatch system
package models

import (
	"time"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MessageChannel is the delivery medium of a message
type MessageChannel string

const (
	MessageChannelEmail    MessageChannel = "EMAIL"
	MessageChannelSMS      MessageChannel = "SMS"
	MessageChannelWhatsApp MessageChannel = "WHATSAPP"
)

// AllMessageChannels lists every supported channel in a stable order
var AllMessageChannels = []MessageChannel{MessageChannelEmail, MessageChannelSMS, MessageChannelWhatsApp}

// Valid reports whether the channel is one of the supported channels
func (c MessageChannel) Valid() bool {
	switch c {
	case MessageChannelEmail, MessageChannelSMS, MessageChannelWhatsApp:
		return true
	}
	return false
}

// RequiresPhone reports whether the channel addresses recipients by phone number
func (c MessageChannel) RequiresPhone() bool {
	return c == MessageChannelSMS || c == MessageChannelWhatsApp
}

// MessageStatus enumerates the lifecycle of a message log
type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "PENDING"
	MessageStatusQueued    MessageStatus = "QUEUED"
	MessageStatusSent      MessageStatus = "SENT"
	MessageStatusDelivered MessageStatus = "DELIVERED"
	MessageStatusRead      MessageStatus = "READ"
	MessageStatusFailed    MessageStatus = "FAILED"
	MessageStatusBounced   MessageStatus = "BOUNCED"
)

// AllMessageStatuses lists every message status in lifecycle order
var AllMessageStatuses = []MessageStatus{
	MessageStatusPending,
	MessageStatusQueued,
	MessageStatusSent,
	MessageStatusDelivered,
	MessageStatusRead,
	MessageStatusFailed,
	MessageStatusBounced,
}

// IsDispatched reports whether the provider has accepted the message
func (s MessageStatus) IsDispatched() bool {
	switch s {
	case MessageStatusSent, MessageStatusDelivered, MessageStatusRead:
		return true
	}
	return false
}

// AcceptsReceipt reports whether a provider receipt carrying next may be applied
// to a message currently in s. Receipts never move a message backwards along
// SENT -> DELIVERED -> READ, and a replay of the current state is a no-op change.
func (s MessageStatus) AcceptsReceipt(next MessageStatus) bool {
	switch next {
	case MessageStatusDelivered:
		return s == MessageStatusSent || s == MessageStatusQueued || s == MessageStatusDelivered
	case MessageStatusRead:
		return s == MessageStatusSent || s == MessageStatusQueued || s == MessageStatusDelivered || s == MessageStatusRead
	case MessageStatusFailed, MessageStatusBounced:
		return s != MessageStatusRead
	}
	return false
}

// RecipientType is the logical kind of message recipient
type RecipientType string

const (
	RecipientTypeCandidate   RecipientType = "CANDIDATE"
	RecipientTypeUser        RecipientType = "USER"
	RecipientTypeInterviewer RecipientType = "INTERVIEWER"
	RecipientTypeExternal    RecipientType = "EXTERNAL"
)

// MessageLog is one outbound message attempt. Rows are never hard-deleted.
type MessageLog struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	UUID           uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_message_logs_uuid" json:"uuid"`
	TenantID       uint           `gorm:"not null;index:idx_message_logs_tenant_created,priority:1" json:"tenant_id"`
	Channel        MessageChannel `gorm:"size:16;not null;index:idx_message_logs_channel" json:"channel"`
	RecipientType  RecipientType  `gorm:"size:16;not null" json:"recipient_type"`
	RecipientID    string         `gorm:"size:255;not null;index:idx_message_logs_recipient" json:"recipient_id"`
	RecipientEmail *string        `gorm:"size:255" json:"recipient_email,omitempty"`
	RecipientPhone *string        `gorm:"size:32" json:"recipient_phone,omitempty"`
	TemplateID     *uint          `gorm:"index:idx_message_logs_template_id" json:"template_id,omitempty"`
	Subject        *string        `gorm:"size:512" json:"subject,omitempty"`
	Body           string         `gorm:"type:text;not null" json:"body"`
	Status         MessageStatus  `gorm:"size:16;not null;default:'QUEUED';index:idx_message_logs_status" json:"status"`
	ExternalID     *string        `gorm:"size:255;index:idx_message_logs_external_id" json:"external_id,omitempty"`
	RetryCount     int            `gorm:"not null;default:0" json:"retry_count"`
	ScheduledFor   *time.Time     `json:"scheduled_for,omitempty"`
	SentAt         *time.Time     `json:"sent_at,omitempty"`
	DeliveredAt    *time.Time     `json:"delivered_at,omitempty"`
	ReadAt         *time.Time     `json:"read_at,omitempty"`
	FailedAt       *time.Time     `json:"failed_at,omitempty"`
	Metadata       JSONMap        `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedBy      *uint          `json:"created_by,omitempty"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_message_logs_tenant_created,priority:2" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (MessageLog) TableName() string { return "message_logs" }

// BeforeCreate ensures UUID and timestamps are set
func (m *MessageLog) BeforeCreate(tx *gorm.DB) error {
	if m.UUID == uuid.Nil {
		m.UUID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = utils.UTCNow()
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = m.CreatedAt
	}
	return nil
}

// Address returns the channel-appropriate recipient address, or "" when absent
func (m *MessageLog) Address() string {
	if m.Channel.RequiresPhone() {
		return utils.Deref(m.RecipientPhone)
	}
	return utils.Deref(m.RecipientEmail)
}

// MessageLogFilter provides filter fields for repository queries
type MessageLogFilter struct {
	ID            *uint
	UUID          *uuid.UUID
	TenantID      *uint
	Channel       *MessageChannel
	Status        *MessageStatus
	RecipientType *RecipientType
	RecipientID   *string
	TemplateID    *uint
	ExternalID    *string
	Search        *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

// MessageCount is one row of a group-by aggregate over message logs
type MessageCount struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}
