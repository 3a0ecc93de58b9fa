package businessflow

import (
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/dto"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/models"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/repository"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/utils"
)

// Canonical receipt statuses every provider vocabulary is mapped onto
const (
	ReceiptDelivered = "delivered"
	ReceiptRead      = "read"
	ReceiptFailed    = "failed"
	ReceiptBounced   = "bounced"
)

// Receipt providers
const (
	ProviderWhatsApp = "whatsapp"
	ProviderSES      = "ses"
	ProviderTwilio   = "twilio"
	ProviderMock     = "mock"
)

var receiptStatuses = map[string]models.MessageStatus{
	ReceiptDelivered: models.MessageStatusDelivered,
	ReceiptRead:      models.MessageStatusRead,
	ReceiptFailed:    models.MessageStatusFailed,
	ReceiptBounced:   models.MessageStatusBounced,
}

// ReceiptFlow reconciles provider delivery receipts with message logs
type ReceiptFlow interface {
	UpdateStatus(ctx context.Context, receipt dto.DeliveryReceipt) (*dto.ReceiptResult, error)
	HandleWhatsApp(ctx context.Context, payload *dto.WhatsAppWebhook) ([]dto.ReceiptResult, error)
	HandleSES(ctx context.Context, envelope *dto.SNSEnvelope) ([]dto.ReceiptResult, error)
	HandleTwilio(ctx context.Context, callback *dto.TwilioStatusCallback) (*dto.ReceiptResult, error)
	HandleMock(ctx context.Context, req *dto.MockReceiptRequest) (*dto.ReceiptResult, error)
}

// ReceiptFlowImpl implements ReceiptFlow
type ReceiptFlowImpl struct {
	messageRepo repository.MessageLogRepository
	logger      *slog.Logger
	now         func() time.Time
}

func NewReceiptFlow(messageRepo repository.MessageLogRepository, logger *slog.Logger) ReceiptFlow {
	return &ReceiptFlowImpl{messageRepo: messageRepo, logger: logger, now: utils.UTCNow}
}

// UpdateStatus applies a canonical receipt. Unknown external ids and receipts
// that would move a message backwards are acknowledged without change.
func (f *ReceiptFlowImpl) UpdateStatus(ctx context.Context, receipt dto.DeliveryReceipt) (*dto.ReceiptResult, error) {
	next, ok := receiptStatuses[strings.ToLower(receipt.Status)]
	if !ok {
		return nil, NewBusinessErrorf("UNKNOWN_RECEIPT_STATUS", "Unknown receipt status %q", ErrUnknownReceiptStatus, receipt.Status)
	}
	result := &dto.ReceiptResult{ExternalID: receipt.ExternalID}

	msg, err := f.messageRepo.ByExternalID(ctx, receipt.ExternalID)
	if err != nil {
		return nil, NewBusinessError("MESSAGE_LOOKUP_FAILED", "Failed to load message", err)
	}
	if msg == nil {
		f.logger.Info("Receipt for unknown message ignored", "provider", receipt.Provider, "external_id", receipt.ExternalID)
		result.Reason = "unknown external id"
		return result, nil
	}
	result.MessageID = &msg.ID
	result.Status = string(msg.Status)

	if !msg.Status.AcceptsReceipt(next) {
		f.logger.Info("Stale receipt ignored",
			"message_id", msg.ID, "current", msg.Status, "receipt", next, "provider", receipt.Provider)
		result.Reason = "stale receipt"
		return result, nil
	}

	at := receipt.Timestamp
	if at.IsZero() {
		at = f.now()
	}
	at = at.UTC()

	msg.Status = next
	switch next {
	case models.MessageStatusDelivered:
		msg.DeliveredAt = &at
	case models.MessageStatusRead:
		msg.ReadAt = &at
		if msg.DeliveredAt == nil {
			msg.DeliveredAt = &at
		}
	case models.MessageStatusFailed, models.MessageStatusBounced:
		msg.FailedAt = &at
	}

	if msg.Metadata == nil {
		msg.Metadata = models.JSONMap{}
	}
	details := map[string]any{"provider": receipt.Provider, "status": strings.ToLower(receipt.Status), "at": at.Format(time.RFC3339)}
	maps.Copy(details, receipt.Metadata)
	msg.Metadata["receipt"] = details
	if errText, ok := receipt.Metadata["error"].(string); ok && errText != "" {
		msg.Metadata["error"] = errText
	}
	msg.UpdatedAt = f.now()

	if err := f.messageRepo.Update(ctx, msg); err != nil {
		return nil, NewBusinessError("UPDATE_MESSAGE_FAILED", "Failed to apply receipt", err)
	}

	f.logger.Info("Receipt applied", "message_id", msg.ID, "status", next, "provider", receipt.Provider)
	result.Applied = true
	result.Status = string(next)
	return result, nil
}

// applyAll runs each receipt independently; one failure does not drop the rest
func (f *ReceiptFlowImpl) applyAll(ctx context.Context, receipts []dto.DeliveryReceipt) ([]dto.ReceiptResult, error) {
	results := make([]dto.ReceiptResult, 0, len(receipts))
	var firstErr error
	for _, r := range receipts {
		res, err := f.UpdateStatus(ctx, r)
		if err != nil {
			f.logger.Warn("Failed to apply receipt", "provider", r.Provider, "external_id", r.ExternalID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		results = append(results, *res)
	}
	return results, firstErr
}

// WhatsAppReceipts normalizes a Cloud API webhook; "sent" statuses carry no new information
func WhatsAppReceipts(payload *dto.WhatsAppWebhook) []dto.DeliveryReceipt {
	var out []dto.DeliveryReceipt
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, st := range change.Value.Statuses {
				status := ""
				switch strings.ToLower(st.Status) {
				case "delivered":
					status = ReceiptDelivered
				case "read":
					status = ReceiptRead
				case "failed":
					status = ReceiptFailed
				}
				if status == "" || st.ID == "" {
					continue
				}
				receipt := dto.DeliveryReceipt{
					Provider:   ProviderWhatsApp,
					ExternalID: st.ID,
					Status:     status,
					Timestamp:  parseUnixString(st.Timestamp),
					Metadata:   map[string]any{"recipient_id": st.RecipientID},
				}
				if len(st.Errors) > 0 {
					receipt.Metadata["error"] = st.Errors[0].Title
					receipt.Metadata["error_code"] = st.Errors[0].Code
				}
				out = append(out, receipt)
			}
		}
	}
	return out
}

func (f *ReceiptFlowImpl) HandleWhatsApp(ctx context.Context, payload *dto.WhatsAppWebhook) ([]dto.ReceiptResult, error) {
	return f.applyAll(ctx, WhatsAppReceipts(payload))
}

// SESReceipt normalizes an SES notification. The RFC Message-ID header wins
// over the SES id because that is what the SMTP sender records.
func SESReceipt(n *dto.SESNotification) (dto.DeliveryReceipt, bool) {
	kind := n.NotificationType
	if kind == "" {
		kind = n.EventType
	}
	externalID := strings.Trim(strings.TrimSpace(n.Mail.CommonHeaders.MessageID), "<>")
	if externalID == "" {
		externalID = n.Mail.MessageID
	}
	receipt := dto.DeliveryReceipt{Provider: ProviderSES, ExternalID: externalID, Metadata: map[string]any{"ses_message_id": n.Mail.MessageID}}

	switch kind {
	case "Delivery":
		receipt.Status = ReceiptDelivered
		if n.Delivery != nil {
			receipt.Timestamp = parseRFC3339(n.Delivery.Timestamp)
		}
	case "Bounce":
		receipt.Status = ReceiptBounced
		if n.Bounce != nil {
			receipt.Timestamp = parseRFC3339(n.Bounce.Timestamp)
			receipt.Metadata["error"] = "bounce: " + n.Bounce.BounceType
		}
	case "Complaint":
		receipt.Status = ReceiptBounced
		receipt.Metadata["error"] = "complaint"
		if n.Complaint != nil {
			receipt.Timestamp = parseRFC3339(n.Complaint.Timestamp)
		}
	case "Reject":
		receipt.Status = ReceiptFailed
		if n.Reject != nil {
			receipt.Metadata["error"] = "rejected: " + n.Reject.Reason
		}
	default:
		return dto.DeliveryReceipt{}, false
	}
	return receipt, externalID != ""
}

func (f *ReceiptFlowImpl) HandleSES(ctx context.Context, envelope *dto.SNSEnvelope) ([]dto.ReceiptResult, error) {
	switch envelope.Type {
	case "SubscriptionConfirmation", "UnsubscribeConfirmation":
		f.logger.Info("SNS subscription message received", "type", envelope.Type, "topic_arn", envelope.TopicArn, "subscribe_url", envelope.SubscribeURL)
		return nil, nil
	}

	var n dto.SESNotification
	if err := json.Unmarshal([]byte(envelope.Message), &n); err != nil {
		return nil, NewBusinessError("INVALID_SES_NOTIFICATION", "Failed to decode SES notification", err)
	}
	receipt, ok := SESReceipt(&n)
	if !ok {
		f.logger.Debug("SES notification ignored", "type", n.NotificationType, "event_type", n.EventType)
		return nil, nil
	}
	return f.applyAll(ctx, []dto.DeliveryReceipt{receipt})
}

// TwilioReceipt normalizes a status callback; intermediate statuses are ignored
func TwilioReceipt(cb *dto.TwilioStatusCallback) (dto.DeliveryReceipt, bool) {
	status := ""
	switch strings.ToLower(cb.MessageStatus) {
	case "delivered":
		status = ReceiptDelivered
	case "read":
		status = ReceiptRead
	case "undelivered", "failed":
		status = ReceiptFailed
	}
	if status == "" || cb.MessageSid == "" {
		return dto.DeliveryReceipt{}, false
	}
	receipt := dto.DeliveryReceipt{
		Provider:   ProviderTwilio,
		ExternalID: cb.MessageSid,
		Status:     status,
		Metadata:   map[string]any{"to": cb.To},
	}
	if cb.ErrorCode != "" {
		receipt.Metadata["error"] = "twilio error " + cb.ErrorCode
		receipt.Metadata["error_code"] = cb.ErrorCode
	}
	return receipt, true
}

func (f *ReceiptFlowImpl) HandleTwilio(ctx context.Context, callback *dto.TwilioStatusCallback) (*dto.ReceiptResult, error) {
	receipt, ok := TwilioReceipt(callback)
	if !ok {
		return &dto.ReceiptResult{ExternalID: callback.MessageSid, Reason: "status ignored"}, nil
	}
	return f.UpdateStatus(ctx, receipt)
}

func (f *ReceiptFlowImpl) HandleMock(ctx context.Context, req *dto.MockReceiptRequest) (*dto.ReceiptResult, error) {
	receipt := dto.DeliveryReceipt{
		Provider:   ProviderMock,
		ExternalID: req.ExternalID,
		Status:     req.Status,
		Timestamp:  utils.Deref(req.Timestamp),
		Metadata:   req.Metadata,
	}
	return f.UpdateStatus(ctx, receipt)
}

func parseUnixString(s string) time.Time {
	secs, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}

func parseRFC3339(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
