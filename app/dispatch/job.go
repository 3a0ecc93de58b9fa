// Package dispatch implements the per-channel message dispatch queue and its workers
package dispatch

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/models"
	"github.com/google/uuid"
)

// MessageJob is one of EmailJob, SMSJob or WhatsAppJob. Consumers switch on the
// concrete type; the unexported marker keeps the set closed.
type MessageJob interface {
	Channel() models.MessageChannel
	LogID() uint
	Tenant() uint
	isMessageJob()
}

// EmailJob carries an email for a message log
type EmailJob struct {
	MessageLogID   uint           `json:"messageLogId"`
	TenantID       uint           `json:"tenantId"`
	RecipientEmail string         `json:"recipientEmail"`
	Subject        string         `json:"subject,omitempty"`
	Body           string         `json:"body"`
	TemplateID     *uint          `json:"templateId,omitempty"`
	Context        map[string]any `json:"context,omitempty"`
}

// SMSJob carries a text message for a message log
type SMSJob struct {
	MessageLogID   uint           `json:"messageLogId"`
	TenantID       uint           `json:"tenantId"`
	RecipientPhone string         `json:"recipientPhone"`
	Body           string         `json:"body"`
	TemplateID     *uint          `json:"templateId,omitempty"`
	Context        map[string]any `json:"context,omitempty"`
}

// WhatsAppJob carries a WhatsApp text for a message log
type WhatsAppJob struct {
	MessageLogID   uint           `json:"messageLogId"`
	TenantID       uint           `json:"tenantId"`
	RecipientPhone string         `json:"recipientPhone"`
	Body           string         `json:"body"`
	TemplateID     *uint          `json:"templateId,omitempty"`
	Context        map[string]any `json:"context,omitempty"`
}

func (EmailJob) Channel() models.MessageChannel    { return models.MessageChannelEmail }
func (SMSJob) Channel() models.MessageChannel      { return models.MessageChannelSMS }
func (WhatsAppJob) Channel() models.MessageChannel { return models.MessageChannelWhatsApp }

func (j EmailJob) LogID() uint    { return j.MessageLogID }
func (j SMSJob) LogID() uint      { return j.MessageLogID }
func (j WhatsAppJob) LogID() uint { return j.MessageLogID }

func (j EmailJob) Tenant() uint    { return j.TenantID }
func (j SMSJob) Tenant() uint      { return j.TenantID }
func (j WhatsAppJob) Tenant() uint { return j.TenantID }

func (EmailJob) isMessageJob()    {}
func (SMSJob) isMessageJob()      {}
func (WhatsAppJob) isMessageJob() {}

// JobFromMessageLog rebuilds the job for a stored message, so a retry needs
// nothing beyond the message log row
func JobFromMessageLog(m *models.MessageLog) (MessageJob, error) {
	var ctx map[string]any
	if raw, ok := m.Metadata["context"].(map[string]any); ok {
		ctx = raw
	}
	subject := ""
	if m.Subject != nil {
		subject = *m.Subject
	}
	email, phone := "", ""
	if m.RecipientEmail != nil {
		email = *m.RecipientEmail
	}
	if m.RecipientPhone != nil {
		phone = *m.RecipientPhone
	}

	switch m.Channel {
	case models.MessageChannelEmail:
		return EmailJob{MessageLogID: m.ID, TenantID: m.TenantID, RecipientEmail: email, Subject: subject, Body: m.Body, TemplateID: m.TemplateID, Context: ctx}, nil
	case models.MessageChannelSMS:
		return SMSJob{MessageLogID: m.ID, TenantID: m.TenantID, RecipientPhone: phone, Body: m.Body, TemplateID: m.TemplateID, Context: ctx}, nil
	case models.MessageChannelWhatsApp:
		return WhatsAppJob{MessageLogID: m.ID, TenantID: m.TenantID, RecipientPhone: phone, Body: m.Body, TemplateID: m.TemplateID, Context: ctx}, nil
	default:
		return nil, fmt.Errorf("unsupported channel %q", m.Channel)
	}
}

// Envelope is the queue's wire record around a job
type Envelope struct {
	ID          string                `json:"id"`
	Channel     models.MessageChannel `json:"channel"`
	Attempt     int                   `json:"attempt"`
	MaxAttempts int                   `json:"maxAttempts"`
	BackoffBase time.Duration         `json:"backoffBase"`
	EnqueuedAt  time.Time             `json:"enqueuedAt"`
	LastError   string                `json:"lastError,omitempty"`
	Payload     json.RawMessage       `json:"payload"`
}

// NewEnvelope wraps a job with its delivery policy
func NewEnvelope(job MessageJob, opts EnqueueOptions, now time.Time) (*Envelope, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job: %w", err)
	}
	opts = opts.withDefaults()
	return &Envelope{
		ID:          uuid.NewString(),
		Channel:     job.Channel(),
		Attempt:     0,
		MaxAttempts: opts.Attempts,
		BackoffBase: opts.BackoffBase,
		EnqueuedAt:  now,
		Payload:     payload,
	}, nil
}

// Job decodes the payload into the concrete job type for the envelope's channel
func (e *Envelope) Job() (MessageJob, error) {
	switch e.Channel {
	case models.MessageChannelEmail:
		var j EmailJob
		if err := json.Unmarshal(e.Payload, &j); err != nil {
			return nil, fmt.Errorf("failed to decode email job: %w", err)
		}
		return j, nil
	case models.MessageChannelSMS:
		var j SMSJob
		if err := json.Unmarshal(e.Payload, &j); err != nil {
			return nil, fmt.Errorf("failed to decode sms job: %w", err)
		}
		return j, nil
	case models.MessageChannelWhatsApp:
		var j WhatsAppJob
		if err := json.Unmarshal(e.Payload, &j); err != nil {
			return nil, fmt.Errorf("failed to decode whatsapp job: %w", err)
		}
		return j, nil
	default:
		return nil, fmt.Errorf("unsupported channel %q", e.Channel)
	}
}
