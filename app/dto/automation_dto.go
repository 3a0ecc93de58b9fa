package dto

import "time"

// ProcessTriggerRequest fires a domain event at the tenant's automation rules
type ProcessTriggerRequest struct {
	TenantID uint           `json:"-"`
	Trigger  string         `json:"trigger" validate:"required"`
	Context  map[string]any `json:"context"`
}

// ProcessTriggerResponse counts rules evaluated and rules that produced a message
type ProcessTriggerResponse struct {
	Processed int `json:"processed"`
	Queued    int `json:"queued"`
}

// AutomationJob is the event envelope consumed from the automation topic
type AutomationJob struct {
	TenantID   uint           `json:"tenantId"`
	Trigger    string         `json:"trigger"`
	EntityID   string         `json:"entityId"`
	EntityType string         `json:"entityType"`
	Data       map[string]any `json:"data"`
}

// CreateAutomationRuleRequest binds a trigger to a template on one channel
type CreateAutomationRuleRequest struct {
	TenantID     uint           `json:"-"`
	UserID       *uint          `json:"-"`
	Name         string         `json:"name" validate:"required,min=1,max=255"`
	Trigger      string         `json:"trigger" validate:"required"`
	Channel      string         `json:"channel" validate:"required,oneof=EMAIL SMS WHATSAPP"`
	TemplateID   uint           `json:"template_id" validate:"required,gt=0"`
	DelayMinutes int            `json:"delay_minutes" validate:"gte=0,lte=525600"`
	Conditions   map[string]any `json:"conditions,omitempty"`
	IsActive     *bool          `json:"is_active,omitempty"`
}

// UpdateAutomationRuleRequest changes a rule; nil fields are left as they are
type UpdateAutomationRuleRequest struct {
	TenantID     uint            `json:"-"`
	RuleID       uint            `json:"-"`
	Name         *string         `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Trigger      *string         `json:"trigger,omitempty"`
	Channel      *string         `json:"channel,omitempty" validate:"omitempty,oneof=EMAIL SMS WHATSAPP"`
	TemplateID   *uint           `json:"template_id,omitempty" validate:"omitempty,gt=0"`
	DelayMinutes *int            `json:"delay_minutes,omitempty" validate:"omitempty,gte=0,lte=525600"`
	Conditions   *map[string]any `json:"conditions,omitempty"`
	IsActive     *bool           `json:"is_active,omitempty"`
}

// AutomationRuleItem is a rule in API responses
type AutomationRuleItem struct {
	ID           uint           `json:"id"`
	Name         string         `json:"name"`
	Trigger      string         `json:"trigger"`
	Channel      string         `json:"channel"`
	TemplateID   uint           `json:"template_id"`
	DelayMinutes int            `json:"delay_minutes"`
	Conditions   map[string]any `json:"conditions,omitempty"`
	IsActive     bool           `json:"is_active"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// ListAutomationRulesRequest filters a tenant's rules
type ListAutomationRulesRequest struct {
	TenantID uint    `json:"-"`
	Trigger  *string `json:"trigger,omitempty" query:"trigger"`
	Channel  *string `json:"channel,omitempty" query:"channel" validate:"omitempty,oneof=EMAIL SMS WHATSAPP"`
	IsActive *bool   `json:"is_active,omitempty" query:"is_active"`
}
