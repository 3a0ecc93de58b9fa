package dto

import "time"

// CreateTemplateRequest creates a tenant template; variables are extracted from subject and body
type CreateTemplateRequest struct {
	TenantID uint    `json:"-"`
	UserID   *uint   `json:"-"`
	Name     string  `json:"name" validate:"required,min=1,max=255"`
	Channel  string  `json:"channel" validate:"required,oneof=EMAIL SMS WHATSAPP"`
	Category string  `json:"category" validate:"omitempty,oneof=INTERVIEW APPLICATION OFFER REJECTION FEEDBACK GENERAL"`
	Subject  *string `json:"subject,omitempty" validate:"omitempty,max=512"`
	Body     string  `json:"body" validate:"required,max=20000"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// UpdateTemplateRequest changes a template; nil fields are left as they are
type UpdateTemplateRequest struct {
	TenantID   uint    `json:"-"`
	UserID     *uint   `json:"-"`
	TemplateID uint    `json:"-"`
	Name       *string `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Category   *string `json:"category,omitempty" validate:"omitempty,oneof=INTERVIEW APPLICATION OFFER REJECTION FEEDBACK GENERAL"`
	Subject    *string `json:"subject,omitempty" validate:"omitempty,max=512"`
	Body       *string `json:"body,omitempty" validate:"omitempty,min=1,max=20000"`
	IsActive   *bool   `json:"is_active,omitempty"`
}

// TemplateItem is a template in API responses
type TemplateItem struct {
	ID        uint      `json:"id"`
	Name      string    `json:"name"`
	Channel   string    `json:"channel"`
	Category  string    `json:"category"`
	Subject   *string   `json:"subject,omitempty"`
	Body      string    `json:"body"`
	Variables []string  `json:"variables"`
	Version   int       `json:"version"`
	IsSystem  bool      `json:"is_system"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TemplateHistoryItem is an archived template version
type TemplateHistoryItem struct {
	Version   int       `json:"version"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	Subject   *string   `json:"subject,omitempty"`
	Body      string    `json:"body"`
	Variables []string  `json:"variables"`
	ChangedBy *uint     `json:"changed_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ListTemplatesRequest filters a tenant's templates
type ListTemplatesRequest struct {
	TenantID uint    `json:"-"`
	Channel  *string `json:"channel,omitempty" query:"channel" validate:"omitempty,oneof=EMAIL SMS WHATSAPP"`
	Category *string `json:"category,omitempty" query:"category" validate:"omitempty,oneof=INTERVIEW APPLICATION OFFER REJECTION FEEDBACK GENERAL"`
	IsActive *bool   `json:"is_active,omitempty" query:"is_active"`
}

// PreviewTemplateRequest renders a stored template, or the given subject/body, against a sample context
type PreviewTemplateRequest struct {
	TenantID    uint           `json:"-"`
	TemplateID  *uint          `json:"template_id,omitempty" validate:"omitempty,gt=0"`
	InterviewID *uint          `json:"interview_id,omitempty" validate:"omitempty,gt=0"`
	Subject     *string        `json:"subject,omitempty"`
	Body        *string        `json:"body,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
}

// PreviewTemplateResponse is the rendered preview; HadError is set when the template was malformed
type PreviewTemplateResponse struct {
	Subject   *string  `json:"subject,omitempty"`
	Body      string   `json:"body"`
	Variables []string `json:"variables"`
	HadError  bool     `json:"had_error"`
	Error     string   `json:"error,omitempty"`
}
