package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/services"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/models"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/utils"
)

// MessageStore is the slice of the message log repository the processor needs
type MessageStore interface {
	ByID(ctx context.Context, id uint) (*models.MessageLog, error)
	MarkSent(ctx context.Context, id uint, externalID string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id uint, reason string, failedAt time.Time) error
}

// Processor delivers jobs through the channel senders and records the result
// on the message log
type Processor struct {
	store   MessageStore
	senders map[models.MessageChannel]services.ChannelSender
	logger  *slog.Logger
}

// NewProcessor creates a Processor
func NewProcessor(store MessageStore, senders map[models.MessageChannel]services.ChannelSender, logger *slog.Logger) *Processor {
	return &Processor{store: store, senders: senders, logger: logger}
}

// Handle is a queue Handler. It is safe to run more than once for the same
// message: messages already accepted by a provider are skipped.
func (p *Processor) Handle(ctx context.Context, job MessageJob, attempt int) error {
	msg, err := p.store.ByID(ctx, job.LogID())
	if err != nil {
		return fmt.Errorf("failed to load message log %d: %w", job.LogID(), err)
	}
	if msg == nil {
		return services.Permanent(fmt.Errorf("message log %d not found", job.LogID()))
	}
	if msg.Status.IsDispatched() {
		p.logger.Info("Message already dispatched, skipping", "message_id", msg.ID, "status", msg.Status)
		return nil
	}

	out, err := outboundFor(job, msg)
	if err != nil {
		return p.fail(ctx, msg, err)
	}

	sender, ok := p.senders[job.Channel()]
	if !ok {
		return p.fail(ctx, msg, services.Permanent(fmt.Errorf("no sender configured for channel %s", job.Channel())))
	}

	res, err := sender.Send(ctx, out)
	if err != nil {
		return p.fail(ctx, msg, err)
	}

	if err := p.store.MarkSent(ctx, msg.ID, res.ExternalID, utils.UTCNow()); err != nil {
		// The provider accepted the message; failing the attempt would resend it.
		p.logger.Error("Failed to record sent message", "message_id", msg.ID, "external_id", res.ExternalID, "error", err)
		return nil
	}
	p.logger.Info("Message sent",
		"message_id", msg.ID,
		"tenant_id", msg.TenantID,
		"channel", msg.Channel,
		"provider", res.Provider,
		"external_id", res.ExternalID,
		"attempt", attempt)
	return nil
}

func (p *Processor) fail(ctx context.Context, msg *models.MessageLog, cause error) error {
	if err := p.store.MarkFailed(ctx, msg.ID, cause.Error(), utils.UTCNow()); err != nil {
		p.logger.Error("Failed to record message failure", "message_id", msg.ID, "error", err)
	}
	return cause
}

func outboundFor(job MessageJob, msg *models.MessageLog) (services.OutboundMessage, error) {
	out := services.OutboundMessage{Reference: msg.UUID.String()}
	switch j := job.(type) {
	case EmailJob:
		out.To, out.Subject, out.Body = j.RecipientEmail, j.Subject, j.Body
	case SMSJob:
		out.To, out.Body = j.RecipientPhone, j.Body
	case WhatsAppJob:
		out.To, out.Body = j.RecipientPhone, j.Body
	default:
		return out, services.Permanent(fmt.Errorf("unsupported job type %T", job))
	}
	if out.To == "" {
		out.To = msg.Address()
	}
	if out.To == "" {
		return out, services.Permanent(fmt.Errorf("%w %s", services.ErrMissingAddress, job.Channel()))
	}
	return out, nil
}
