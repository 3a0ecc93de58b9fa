package models

import (
	"time"

	"github.com/lib/pq"
)

// TemplateCategory groups templates in the admin UI
type TemplateCategory string

const (
	TemplateCategoryInterview   TemplateCategory = "INTERVIEW"
	TemplateCategoryApplication TemplateCategory = "APPLICATION"
	TemplateCategoryOffer       TemplateCategory = "OFFER"
	TemplateCategoryRejection   TemplateCategory = "REJECTION"
	TemplateCategoryFeedback    TemplateCategory = "FEEDBACK"
	TemplateCategoryGeneral     TemplateCategory = "GENERAL"
)

// Template is the live head of a named, versioned piece of content per tenant and channel.
// Its ID never changes across edits; prior versions live in TemplateHistory.
type Template struct {
	ID        uint             `gorm:"primaryKey" json:"id"`
	TenantID  uint             `gorm:"not null;uniqueIndex:idx_templates_tenant_name_channel,priority:1" json:"tenant_id"`
	Name      string           `gorm:"size:255;not null;uniqueIndex:idx_templates_tenant_name_channel,priority:2" json:"name"`
	Channel   MessageChannel   `gorm:"size:16;not null;uniqueIndex:idx_templates_tenant_name_channel,priority:3" json:"channel"`
	Category  TemplateCategory `gorm:"size:32;not null;default:'GENERAL'" json:"category"`
	Subject   *string          `gorm:"size:512" json:"subject,omitempty"`
	Body      string           `gorm:"type:text;not null" json:"body"`
	Variables pq.StringArray   `gorm:"type:text[]" json:"variables"`
	Version   int              `gorm:"not null;default:1" json:"version"`
	IsSystem  *bool            `gorm:"default:false" json:"is_system"`
	IsActive  *bool            `gorm:"default:true;index:idx_templates_is_active" json:"is_active"`
	CreatedBy *uint            `json:"created_by,omitempty"`
	UpdatedBy *uint            `json:"updated_by,omitempty"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (Template) TableName() string { return "templates" }

// TemplateVersion is an immutable snapshot of a template's content at one version
type TemplateVersion struct {
	Name      string
	Channel   MessageChannel
	Category  TemplateCategory
	Subject   *string
	Body      string
	Variables []string
	Version   int
}

// Snapshot captures the template's current content as an immutable version value
func (t Template) Snapshot() TemplateVersion {
	vars := make([]string, len(t.Variables))
	copy(vars, t.Variables)
	var subject *string
	if t.Subject != nil {
		s := *t.Subject
		subject = &s
	}
	return TemplateVersion{
		Name:      t.Name,
		Channel:   t.Channel,
		Category:  t.Category,
		Subject:   subject,
		Body:      t.Body,
		Variables: vars,
		Version:   t.Version,
	}
}

// TemplateHistory archives a template version that has since been superseded
type TemplateHistory struct {
	ID         uint             `gorm:"primaryKey" json:"id"`
	TemplateID uint             `gorm:"not null;uniqueIndex:idx_template_history_template_version,priority:1" json:"template_id"`
	TenantID   uint             `gorm:"not null;index:idx_template_history_tenant_id" json:"tenant_id"`
	Name       string           `gorm:"size:255;not null" json:"name"`
	Channel    MessageChannel   `gorm:"size:16;not null" json:"channel"`
	Category   TemplateCategory `gorm:"size:32;not null" json:"category"`
	Subject    *string          `gorm:"size:512" json:"subject,omitempty"`
	Body       string           `gorm:"type:text;not null" json:"body"`
	Variables  pq.StringArray   `gorm:"type:text[]" json:"variables"`
	Version    int              `gorm:"not null;uniqueIndex:idx_template_history_template_version,priority:2" json:"version"`
	ChangedBy  *uint            `json:"changed_by,omitempty"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
}

func (TemplateHistory) TableName() string { return "template_history" }

// NewTemplateHistory archives the given version of a template
func NewTemplateHistory(templateID, tenantID uint, v TemplateVersion, changedBy *uint) *TemplateHistory {
	return &TemplateHistory{
		TemplateID: templateID,
		TenantID:   tenantID,
		Name:       v.Name,
		Channel:    v.Channel,
		Category:   v.Category,
		Subject:    v.Subject,
		Body:       v.Body,
		Variables:  pq.StringArray(v.Variables),
		Version:    v.Version,
		ChangedBy:  changedBy,
	}
}

// TemplateFilter provides filter fields for repository queries
type TemplateFilter struct {
	ID       *uint
	TenantID *uint
	Name     *string
	Channel  *MessageChannel
	Category *TemplateCategory
	IsActive *bool
	IsSystem *bool
}
