// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/models"
	"gorm.io/gorm"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// Transactor runs a unit of work inside one database transaction
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(context.Context) error) error
}

type gormTransactor struct {
	db *gorm.DB
}

// NewTransactor returns a Transactor backed by gorm
func NewTransactor(db *gorm.DB) Transactor {
	return &gormTransactor{db: db}
}

func (t *gormTransactor) WithTransaction(ctx context.Context, fn func(context.Context) error) error {
	return WithTransaction(ctx, t.db, fn)
}

// MessageGroupBy selects the column message stats are aggregated on
type MessageGroupBy string

const (
	MessageGroupByStatus  MessageGroupBy = "status"
	MessageGroupByChannel MessageGroupBy = "channel"
)

// MessageLogRepository defines operations for message logs
type MessageLogRepository interface {
	Repository[models.MessageLog, models.MessageLogFilter]
	ByTenantAndID(ctx context.Context, tenantID, id uint) (*models.MessageLog, error)
	ByExternalID(ctx context.Context, externalID string) (*models.MessageLog, error)
	Update(ctx context.Context, msg *models.MessageLog) error
	MarkSent(ctx context.Context, id uint, externalID string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id uint, reason string, failedAt time.Time) error
	ResetForRetry(ctx context.Context, id uint) (bool, error)
	CountGrouped(ctx context.Context, filter models.MessageLogFilter, groupBy MessageGroupBy) ([]models.MessageCount, error)
}

// ScheduledMessageRepository defines operations for scheduled messages
type ScheduledMessageRepository interface {
	Repository[models.ScheduledMessage, models.ScheduledMessageFilter]
	ByTenantAndID(ctx context.Context, tenantID, id uint) (*models.ScheduledMessage, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledMessage, error)
	MarkSent(ctx context.Context, id, messageLogID uint, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, id uint, reason string, at time.Time) (bool, error)
	Cancel(ctx context.Context, tenantID, id uint, at time.Time) (bool, error)
}

// TemplateRepository defines operations for templates
type TemplateRepository interface {
	Repository[models.Template, models.TemplateFilter]
	ByTenantAndID(ctx context.Context, tenantID, id uint) (*models.Template, error)
	ByName(ctx context.Context, tenantID uint, name string, channel models.MessageChannel) (*models.Template, error)
	Update(ctx context.Context, tpl *models.Template) error
}

// TemplateHistoryRepository defines operations for archived template versions
type TemplateHistoryRepository interface {
	Save(ctx context.Context, row *models.TemplateHistory) error
	ListByTemplate(ctx context.Context, templateID uint) ([]*models.TemplateHistory, error)
}

// AutomationRuleRepository defines operations for automation rules
type AutomationRuleRepository interface {
	Repository[models.AutomationRule, models.AutomationRuleFilter]
	ByTenantAndID(ctx context.Context, tenantID, id uint) (*models.AutomationRule, error)
	ListActive(ctx context.Context, tenantID uint, trigger models.AutomationTrigger) ([]*models.AutomationRule, error)
	Update(ctx context.Context, rule *models.AutomationRule) error
	Delete(ctx context.Context, tenantID, id uint) error
}

// TenantRepository defines operations for tenants
type TenantRepository interface {
	Repository[models.Tenant, models.TenantFilter]
	BySlug(ctx context.Context, slug string) (*models.Tenant, error)
}

// CandidateRepository defines operations for candidates; soft-deleted rows are never returned
type CandidateRepository interface {
	Repository[models.Candidate, models.CandidateFilter]
	ByTenantAndRef(ctx context.Context, tenantID uint, ref string) (*models.Candidate, error)
}

// UserRepository defines operations for tenant members
type UserRepository interface {
	Repository[models.User, models.UserFilter]
	ByTenantAndRef(ctx context.Context, tenantID uint, ref string) (*models.User, error)
}

// InterviewRepository defines operations for interviews
type InterviewRepository interface {
	Repository[models.Interview, models.InterviewFilter]
	ByTenantAndID(ctx context.Context, tenantID, id uint) (*models.Interview, error)
}
