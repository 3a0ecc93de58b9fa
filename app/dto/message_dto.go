package dto

import "time"

// SendMessageRequest asks for one message to be sent now. Either TemplateID or Body must be given.
type SendMessageRequest struct {
	TenantID      uint           `json:"-"`
	UserID        *uint          `json:"-"`
	Channel       string         `json:"channel" validate:"required,oneof=EMAIL SMS WHATSAPP"`
	RecipientType string         `json:"recipient_type" validate:"required,oneof=CANDIDATE USER INTERVIEWER EXTERNAL"`
	RecipientID   string         `json:"recipient_id" validate:"required,max=255"`
	TemplateID    *uint          `json:"template_id,omitempty" validate:"omitempty,gt=0"`
	Subject       *string        `json:"subject,omitempty" validate:"omitempty,max=512"`
	Body          *string        `json:"body,omitempty" validate:"omitempty,max=20000"`
	Context       map[string]any `json:"context,omitempty"`
}

// ScheduleMessageRequest asks for a message to be sent at ScheduledFor
type ScheduleMessageRequest struct {
	SendMessageRequest
	ScheduledFor time.Time `json:"scheduled_for" validate:"required"`
}

// MessageItem is a message log in API responses
type MessageItem struct {
	ID             uint           `json:"id"`
	UUID           string         `json:"uuid"`
	Channel        string         `json:"channel"`
	RecipientType  string         `json:"recipient_type"`
	RecipientID    string         `json:"recipient_id"`
	RecipientEmail *string        `json:"recipient_email,omitempty"`
	RecipientPhone *string        `json:"recipient_phone,omitempty"`
	TemplateID     *uint          `json:"template_id,omitempty"`
	Subject        *string        `json:"subject,omitempty"`
	Body           string         `json:"body"`
	Status         string         `json:"status"`
	ExternalID     *string        `json:"external_id,omitempty"`
	RetryCount     int            `json:"retry_count"`
	ScheduledFor   *time.Time     `json:"scheduled_for,omitempty"`
	SentAt         *time.Time     `json:"sent_at,omitempty"`
	DeliveredAt    *time.Time     `json:"delivered_at,omitempty"`
	ReadAt         *time.Time     `json:"read_at,omitempty"`
	FailedAt       *time.Time     `json:"failed_at,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ScheduledMessageItem is a scheduled message in API responses
type ScheduledMessageItem struct {
	ID            uint       `json:"id"`
	UUID          string     `json:"uuid"`
	Channel       string     `json:"channel"`
	RecipientType string     `json:"recipient_type"`
	RecipientID   string     `json:"recipient_id"`
	TemplateID    *uint      `json:"template_id,omitempty"`
	ScheduledFor  time.Time  `json:"scheduled_for"`
	Status        string     `json:"status"`
	Subject       *string    `json:"subject,omitempty"`
	Body          string     `json:"body"`
	MessageLogID  *uint      `json:"message_log_id,omitempty"`
	Error         *string    `json:"error,omitempty"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ListMessagesRequest filters a tenant's message logs. StartDate/EndDate bound created_at inclusively.
type ListMessagesRequest struct {
	TenantID      uint       `json:"-"`
	Channel       *string    `json:"channel,omitempty" query:"channel" validate:"omitempty,oneof=EMAIL SMS WHATSAPP"`
	Status        *string    `json:"status,omitempty" query:"status" validate:"omitempty,oneof=PENDING QUEUED SENT DELIVERED READ FAILED BOUNCED"`
	RecipientType *string    `json:"recipient_type,omitempty" query:"recipient_type" validate:"omitempty,oneof=CANDIDATE USER INTERVIEWER EXTERNAL"`
	RecipientID   *string    `json:"recipient_id,omitempty" query:"recipient_id"`
	Search        *string    `json:"search,omitempty" query:"search" validate:"omitempty,max=255"`
	StartDate     *time.Time `json:"start_date,omitempty" query:"start_date"`
	EndDate       *time.Time `json:"end_date,omitempty" query:"end_date"`
	Page          int        `json:"page,omitempty" query:"page" validate:"omitempty,gte=1"`
	Limit         int        `json:"limit,omitempty" query:"limit" validate:"omitempty,gte=1,lte=100"`
}

// PaginationInfo contains pagination metadata
type PaginationInfo struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"total_pages"`
}

// ListMessagesResponse represents a paginated list of messages
type ListMessagesResponse struct {
	Items      []MessageItem  `json:"items"`
	Pagination PaginationInfo `json:"pagination"`
}

// ListScheduledMessagesRequest filters a tenant's scheduled messages
type ListScheduledMessagesRequest struct {
	TenantID uint    `json:"-"`
	Channel  *string `json:"channel,omitempty" query:"channel" validate:"omitempty,oneof=EMAIL SMS WHATSAPP"`
	Status   *string `json:"status,omitempty" query:"status" validate:"omitempty,oneof=PENDING SENT CANCELLED FAILED"`
	Page     int     `json:"page,omitempty" query:"page" validate:"omitempty,gte=1"`
	Limit    int     `json:"limit,omitempty" query:"limit" validate:"omitempty,gte=1,lte=100"`
}

// ListScheduledMessagesResponse represents a paginated list of scheduled messages
type ListScheduledMessagesResponse struct {
	Items      []ScheduledMessageItem `json:"items"`
	Pagination PaginationInfo         `json:"pagination"`
}

// RetryMessageResponse reports a successful re-enqueue
type RetryMessageResponse struct {
	Success   bool `json:"success"`
	MessageID uint `json:"message_id"`
}

// MessageStatsRequest bounds the stats window; zero values mean the last 30 days
type MessageStatsRequest struct {
	TenantID  uint       `json:"-"`
	StartDate *time.Time `json:"start_date,omitempty" query:"start_date"`
	EndDate   *time.Time `json:"end_date,omitempty" query:"end_date"`
}

// MessageStatsResponse counts messages by status and channel inside a window
type MessageStatsResponse struct {
	StartDate time.Time        `json:"start_date"`
	EndDate   time.Time        `json:"end_date"`
	Total     int64            `json:"total"`
	ByStatus  map[string]int64 `json:"by_status"`
	ByChannel map[string]int64 `json:"by_channel"`
}

// DeadLetterItem is a queue job that exhausted its attempts
type DeadLetterItem struct {
	JobID        string    `json:"job_id"`
	Channel      string    `json:"channel"`
	MessageLogID uint      `json:"message_log_id"`
	Attempts     int       `json:"attempts"`
	Error        string    `json:"error"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
	FailedAt     time.Time `json:"failed_at"`
}
