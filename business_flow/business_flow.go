// Package businessflow contains the business logic for the application.
package businessflow

import (
	"context"
	"log/slog"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/dto"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/models"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/utils"
)

// RequestIDKey is the context key handlers store the X-Request-ID header under
const RequestIDKey = utils.RequestIDKey

// requestLogger tags the logger with the caller's request id when one is present
func requestLogger(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if id, ok := ctx.Value(RequestIDKey).(string); ok && id != "" {
		return logger.With("request_id", id)
	}
	return logger
}

// ToMessageItem converts a message log model to its API representation
func ToMessageItem(m *models.MessageLog) dto.MessageItem {
	return dto.MessageItem{
		ID:             m.ID,
		UUID:           m.UUID.String(),
		Channel:        string(m.Channel),
		RecipientType:  string(m.RecipientType),
		RecipientID:    m.RecipientID,
		RecipientEmail: m.RecipientEmail,
		RecipientPhone: m.RecipientPhone,
		TemplateID:     m.TemplateID,
		Subject:        m.Subject,
		Body:           m.Body,
		Status:         string(m.Status),
		ExternalID:     m.ExternalID,
		RetryCount:     m.RetryCount,
		ScheduledFor:   m.ScheduledFor,
		SentAt:         m.SentAt,
		DeliveredAt:    m.DeliveredAt,
		ReadAt:         m.ReadAt,
		FailedAt:       m.FailedAt,
		Metadata:       m.Metadata,
		CreatedAt:      m.CreatedAt,
	}
}

// ToScheduledMessageItem converts a scheduled message model to its API representation
func ToScheduledMessageItem(s *models.ScheduledMessage) dto.ScheduledMessageItem {
	return dto.ScheduledMessageItem{
		ID:            s.ID,
		UUID:          s.UUID.String(),
		Channel:       string(s.Channel),
		RecipientType: string(s.RecipientType),
		RecipientID:   s.RecipientID,
		TemplateID:    s.TemplateID,
		ScheduledFor:  s.ScheduledFor,
		Status:        string(s.Status),
		Subject:       s.Payload.Subject,
		Body:          s.Payload.Body,
		MessageLogID:  s.MessageLogID,
		Error:         s.Error,
		ProcessedAt:   s.ProcessedAt,
		CreatedAt:     s.CreatedAt,
	}
}

// ToTemplateItem converts a template model to its API representation
func ToTemplateItem(t *models.Template) dto.TemplateItem {
	vars := []string(t.Variables)
	if vars == nil {
		vars = []string{}
	}
	return dto.TemplateItem{
		ID:        t.ID,
		Name:      t.Name,
		Channel:   string(t.Channel),
		Category:  string(t.Category),
		Subject:   t.Subject,
		Body:      t.Body,
		Variables: vars,
		Version:   t.Version,
		IsSystem:  utils.IsTrue(t.IsSystem),
		IsActive:  utils.IsTrue(t.IsActive),
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

// ToTemplateHistoryItem converts an archived template version to its API representation
func ToTemplateHistoryItem(h *models.TemplateHistory) dto.TemplateHistoryItem {
	vars := []string(h.Variables)
	if vars == nil {
		vars = []string{}
	}
	return dto.TemplateHistoryItem{
		Version:   h.Version,
		Name:      h.Name,
		Category:  string(h.Category),
		Subject:   h.Subject,
		Body:      h.Body,
		Variables: vars,
		ChangedBy: h.ChangedBy,
		CreatedAt: h.CreatedAt,
	}
}

// ToAutomationRuleItem converts an automation rule model to its API representation
func ToAutomationRuleItem(r *models.AutomationRule) dto.AutomationRuleItem {
	return dto.AutomationRuleItem{
		ID:           r.ID,
		Name:         r.Name,
		Trigger:      string(r.Trigger),
		Channel:      string(r.Channel),
		TemplateID:   r.TemplateID,
		DelayMinutes: r.DelayMinutes,
		Conditions:   r.Conditions,
		IsActive:     utils.IsTrue(r.IsActive),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}
