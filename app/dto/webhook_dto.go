package dto

import "time"

// DeliveryReceipt is a provider callback normalized to the canonical status set:
// delivered, read, failed, bounced
type DeliveryReceipt struct {
	Provider   string         `json:"provider"`
	ExternalID string         `json:"external_id"`
	Status     string         `json:"status"`
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ReceiptResult reports what a receipt did to its message
type ReceiptResult struct {
	ExternalID string `json:"external_id"`
	Applied    bool   `json:"applied"`
	MessageID  *uint  `json:"message_id,omitempty"`
	Status     string `json:"status,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// WhatsAppWebhook is the Cloud API webhook body
type WhatsAppWebhook struct {
	Object string                 `json:"object"`
	Entry  []WhatsAppWebhookEntry `json:"entry"`
}

type WhatsAppWebhookEntry struct {
	ID      string                  `json:"id"`
	Changes []WhatsAppWebhookChange `json:"changes"`
}

type WhatsAppWebhookChange struct {
	Field string               `json:"field"`
	Value WhatsAppWebhookValue `json:"value"`
}

type WhatsAppWebhookValue struct {
	MessagingProduct string                  `json:"messaging_product"`
	Statuses         []WhatsAppWebhookStatus `json:"statuses"`
}

type WhatsAppWebhookStatus struct {
	ID          string                 `json:"id"`
	Status      string                 `json:"status"`
	Timestamp   string                 `json:"timestamp"`
	RecipientID string                 `json:"recipient_id"`
	Errors      []WhatsAppWebhookError `json:"errors,omitempty"`
}

type WhatsAppWebhookError struct {
	Code  int    `json:"code"`
	Title string `json:"title"`
}

// SNSEnvelope is the Amazon SNS HTTP delivery body wrapping an SES notification
type SNSEnvelope struct {
	Type         string `json:"Type"`
	MessageID    string `json:"MessageId"`
	TopicArn     string `json:"TopicArn"`
	Message      string `json:"Message"`
	SubscribeURL string `json:"SubscribeURL,omitempty"`
	Timestamp    string `json:"Timestamp"`
}

// SESNotification is an SES event published through SNS
type SESNotification struct {
	NotificationType string `json:"notificationType"`
	EventType        string `json:"eventType"`
	Mail             struct {
		MessageID     string `json:"messageId"`
		Timestamp     string `json:"timestamp"`
		CommonHeaders struct {
			MessageID string `json:"messageId"`
		} `json:"commonHeaders"`
	} `json:"mail"`
	Delivery *struct {
		Timestamp string `json:"timestamp"`
	} `json:"delivery,omitempty"`
	Bounce *struct {
		BounceType string `json:"bounceType"`
		Timestamp  string `json:"timestamp"`
	} `json:"bounce,omitempty"`
	Complaint *struct {
		Timestamp string `json:"timestamp"`
	} `json:"complaint,omitempty"`
	Reject *struct {
		Reason string `json:"reason"`
	} `json:"reject,omitempty"`
}

// TwilioStatusCallback is Twilio's form-encoded status callback
type TwilioStatusCallback struct {
	MessageSid    string `form:"MessageSid"`
	MessageStatus string `form:"MessageStatus"`
	ErrorCode     string `form:"ErrorCode"`
	To            string `form:"To"`
}

// MockReceiptRequest is the body of the development webhook
type MockReceiptRequest struct {
	ExternalID string         `json:"externalId" validate:"required"`
	Status     string         `json:"status" validate:"required"`
	Timestamp  *time.Time     `json:"timestamp,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}
