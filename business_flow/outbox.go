package businessflow

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/dispatch"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/services"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/models"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/repository"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/utils"
)

// renderedContent is a message body and subject after template substitution
type renderedContent struct {
	Subject     *string
	Body        string
	RenderError string
}

// renderContent renders subject and body against vars. Rendering never fails;
// malformed templates come back verbatim with RenderError set.
func renderContent(renderer services.TemplateRenderer, subject *string, body string, vars map[string]any) renderedContent {
	out := renderedContent{}
	res := renderer.Render(body, vars)
	out.Body = res.Text
	if res.HadError {
		out.RenderError = res.Error
	}
	if subject != nil {
		sres := renderer.Render(*subject, vars)
		out.Subject = &sres.Text
		if sres.HadError && out.RenderError == "" {
			out.RenderError = sres.Error
		}
	}
	return out
}

// recipientContext layers the recipient's variables under the caller's context;
// caller values win on key collision
func recipientContext(r *Recipient, callerCtx map[string]any) map[string]any {
	vars := make(map[string]any, len(callerCtx)+2)
	if len(r.Vars) > 0 {
		vars[recipientVarKey(r.Type)] = r.Vars
	}
	vars["recipient"] = map[string]any{
		"name":  r.Name,
		"email": utils.Deref(r.Email),
		"phone": utils.Deref(r.Phone),
	}
	maps.Copy(vars, callerCtx)
	return vars
}

// outbox turns rendered content into queued message logs or pending schedules
type outbox struct {
	messageRepo   repository.MessageLogRepository
	scheduledRepo repository.ScheduledMessageRepository
	dispatcher    dispatch.Dispatcher
	logger        *slog.Logger
}

// newQueuedMessage builds a QUEUED message log for recipient on channel
func newQueuedMessage(tenantID uint, channel models.MessageChannel, r *Recipient, templateID *uint, content renderedContent, meta models.JSONMap, createdBy *uint) *models.MessageLog {
	msg := &models.MessageLog{
		TenantID:      tenantID,
		Channel:       channel,
		RecipientType: r.Type,
		RecipientID:   r.ID,
		TemplateID:    templateID,
		Subject:       content.Subject,
		Body:          content.Body,
		Status:        models.MessageStatusQueued,
		Metadata:      meta,
		CreatedBy:     createdBy,
	}
	if channel.RequiresPhone() {
		msg.RecipientPhone = r.Phone
	} else {
		msg.RecipientEmail = r.Email
	}
	if content.RenderError != "" {
		if msg.Metadata == nil {
			msg.Metadata = models.JSONMap{}
		}
		msg.Metadata["render_error"] = content.RenderError
	}
	return msg
}

// enqueue persists msg and hands it to the dispatcher. An enqueue failure is
// recorded on the message so an explicit retry can recover it.
func (o *outbox) enqueue(ctx context.Context, msg *models.MessageLog) error {
	if err := o.messageRepo.Save(ctx, msg); err != nil {
		return NewBusinessError("CREATE_MESSAGE_FAILED", "Failed to create message", err)
	}
	if _, err := o.dispatcher.Dispatch(ctx, msg); err != nil {
		reason := fmt.Sprintf("enqueue failed: %v", err)
		if markErr := o.messageRepo.MarkFailed(ctx, msg.ID, reason, utils.UTCNow()); markErr != nil {
			o.logger.Error("Failed to mark message failed", "message_id", msg.ID, "error", markErr)
		}
		return NewBusinessError("ENQUEUE_FAILED", "Failed to enqueue message", err)
	}
	return nil
}

// schedule persists a PENDING scheduled message with pre-rendered content
func (o *outbox) schedule(ctx context.Context, row *models.ScheduledMessage) error {
	row.Status = models.ScheduledMessageStatusPending
	if err := o.scheduledRepo.Save(ctx, row); err != nil {
		return NewBusinessError("CREATE_SCHEDULED_MESSAGE_FAILED", "Failed to schedule message", err)
	}
	return nil
}

// newScheduledMessage builds a scheduled message snapshotting the rendered content
func newScheduledMessage(tenantID uint, channel models.MessageChannel, r *Recipient, templateID *uint, content renderedContent, vars map[string]any, createdBy *uint) *models.ScheduledMessage {
	payload := models.ScheduledPayload{
		Subject: content.Subject,
		Body:    content.Body,
		Context: vars,
	}
	if channel.RequiresPhone() {
		payload.RecipientPhone = r.Phone
	} else {
		payload.RecipientEmail = r.Email
	}
	return &models.ScheduledMessage{
		TenantID:      tenantID,
		Channel:       channel,
		RecipientType: r.Type,
		RecipientID:   r.ID,
		TemplateID:    templateID,
		Status:        models.ScheduledMessageStatusPending,
		Payload:       payload,
		CreatedBy:     createdBy,
	}
}
