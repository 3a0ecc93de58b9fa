package businessflow

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/dispatch"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/dto"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/services"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/config"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/models"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/repository"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/utils"
)

const defaultStatsWindow = 30 * 24 * time.Hour

// MessageFlow defines the message operations exposed to callers
type MessageFlow interface {
	Send(ctx context.Context, req *dto.SendMessageRequest) (*dto.MessageItem, error)
	Schedule(ctx context.Context, req *dto.ScheduleMessageRequest) (*dto.ScheduledMessageItem, error)
	Retry(ctx context.Context, tenantID, messageID uint) (*dto.RetryMessageResponse, error)
	CancelScheduled(ctx context.Context, tenantID, scheduledID uint) (*dto.ScheduledMessageItem, error)
	GetMessage(ctx context.Context, tenantID, messageID uint) (*dto.MessageItem, error)
	ListMessages(ctx context.Context, req *dto.ListMessagesRequest) (*dto.ListMessagesResponse, error)
	ListScheduled(ctx context.Context, req *dto.ListScheduledMessagesRequest) (*dto.ListScheduledMessagesResponse, error)
	Stats(ctx context.Context, req *dto.MessageStatsRequest) (*dto.MessageStatsResponse, error)
	ExportMessages(ctx context.Context, req *dto.ListMessagesRequest) (string, []byte, error)
	DeadLetters(ctx context.Context, tenantID uint, channel string, limit int) ([]dto.DeadLetterItem, error)
}

// MessageFlowImpl implements MessageFlow
type MessageFlowImpl struct {
	messageRepo   repository.MessageLogRepository
	scheduledRepo repository.ScheduledMessageRepository
	templateRepo  repository.TemplateRepository
	recipients    RecipientResolver
	renderer      services.TemplateRenderer
	dispatcher    dispatch.Dispatcher
	limiter       services.RateLimiter
	limits        config.RateLimitConfig
	logger        *slog.Logger
	outbox        *outbox
	now           func() time.Time
}

func NewMessageFlow(
	messageRepo repository.MessageLogRepository,
	scheduledRepo repository.ScheduledMessageRepository,
	templateRepo repository.TemplateRepository,
	recipients RecipientResolver,
	renderer services.TemplateRenderer,
	dispatcher dispatch.Dispatcher,
	limiter services.RateLimiter,
	limits config.RateLimitConfig,
	logger *slog.Logger,
) MessageFlow {
	return &MessageFlowImpl{
		messageRepo:   messageRepo,
		scheduledRepo: scheduledRepo,
		templateRepo:  templateRepo,
		recipients:    recipients,
		renderer:      renderer,
		dispatcher:    dispatcher,
		limiter:       limiter,
		limits:        normalizeLimits(limits),
		logger:        logger,
		outbox: &outbox{
			messageRepo:   messageRepo,
			scheduledRepo: scheduledRepo,
			dispatcher:    dispatcher,
			logger:        logger,
		},
		now: utils.UTCNow,
	}
}

func normalizeLimits(l config.RateLimitConfig) config.RateLimitConfig {
	if l.RetryPerMessage <= 0 {
		l.RetryPerMessage = utils.RetryLimitPerMessage
	}
	if l.RetryPerTenant <= 0 {
		l.RetryPerTenant = utils.RetryLimitPerTenant
	}
	if l.SchedulePerTenant <= 0 {
		l.SchedulePerTenant = utils.ScheduleLimitPerTenant
	}
	if l.Window <= 0 {
		l.Window = utils.RateLimitWindow
	}
	return l
}

// prepared is a validated, rendered message ready to be queued or scheduled
type prepared struct {
	channel    models.MessageChannel
	recipient  *Recipient
	templateID *uint
	content    renderedContent
}

// prepare resolves the recipient, checks it has an address on the channel and
// renders the content. Nothing is persisted.
func (f *MessageFlowImpl) prepare(ctx context.Context, req *dto.SendMessageRequest) (*prepared, error) {
	channel := models.MessageChannel(req.Channel)
	if !channel.Valid() {
		return nil, NewBusinessErrorf("INVALID_CHANNEL", "Unsupported channel %q", ErrInvalidChannel, req.Channel)
	}

	recipient, err := f.recipients.Resolve(ctx, req.TenantID, models.RecipientType(req.RecipientType), req.RecipientID)
	if err != nil {
		return nil, err
	}
	if _, err := recipient.AddressFor(channel); err != nil {
		return nil, NewBusinessErrorf("RECIPIENT_ADDRESS_MISSING", "Recipient has no address for %s", err, channel)
	}

	subject, body := req.Subject, utils.Deref(req.Body)
	if req.TemplateID != nil {
		tpl, err := loadUsableTemplate(ctx, f.templateRepo, req.TenantID, *req.TemplateID, channel)
		if err != nil {
			return nil, err
		}
		if subject == nil {
			subject = tpl.Subject
		}
		body = tpl.Body
	}
	if strings.TrimSpace(body) == "" {
		return nil, NewBusinessError("CONTENT_REQUIRED", "Either template_id or body is required", ErrContentRequired)
	}

	vars := recipientContext(recipient, req.Context)
	content := renderContent(f.renderer, subject, body, vars)
	if content.RenderError != "" {
		f.logger.Warn("Message rendered with template errors",
			"tenant_id", req.TenantID, "template_id", req.TemplateID, "error", content.RenderError)
	}

	return &prepared{channel: channel, recipient: recipient, templateID: req.TemplateID, content: content}, nil
}

func loadUsableTemplate(ctx context.Context, repo repository.TemplateRepository, tenantID, templateID uint, channel models.MessageChannel) (*models.Template, error) {
	tpl, err := repo.ByTenantAndID(ctx, tenantID, templateID)
	if err != nil {
		return nil, NewBusinessError("TEMPLATE_LOOKUP_FAILED", "Failed to load template", err)
	}
	if tpl == nil {
		return nil, NewBusinessError("TEMPLATE_NOT_FOUND", "Template not found", ErrTemplateNotFound)
	}
	if tpl.Channel != channel {
		return nil, NewBusinessErrorf("TEMPLATE_CHANNEL_MISMATCH", "Template is for %s, not %s", ErrTemplateChannelMismatch, tpl.Channel, channel)
	}
	if !utils.IsTrue(tpl.IsActive) {
		return nil, NewBusinessError("TEMPLATE_INACTIVE", "Template is inactive", ErrTemplateInactive)
	}
	return tpl, nil
}

// Send creates a QUEUED message and enqueues it for delivery
func (f *MessageFlowImpl) Send(ctx context.Context, req *dto.SendMessageRequest) (*dto.MessageItem, error) {
	p, err := f.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	var meta models.JSONMap
	if len(req.Context) > 0 {
		meta = models.JSONMap{"context": req.Context}
	}
	msg := newQueuedMessage(req.TenantID, p.channel, p.recipient, p.templateID, p.content, meta, req.UserID)
	if err := f.outbox.enqueue(ctx, msg); err != nil {
		return nil, err
	}

	requestLogger(ctx, f.logger).Info("Message queued", "tenant_id", req.TenantID, "message_id", msg.ID, "channel", msg.Channel)
	item := ToMessageItem(msg)
	return &item, nil
}

// Schedule persists a PENDING scheduled message with content rendered now.
// A tenant may schedule a bounded number of messages per window.
func (f *MessageFlowImpl) Schedule(ctx context.Context, req *dto.ScheduleMessageRequest) (*dto.ScheduledMessageItem, error) {
	if !req.ScheduledFor.After(f.now()) {
		return nil, NewBusinessError("SCHEDULE_IN_PAST", "scheduled_for must be in the future", ErrScheduleInPast)
	}
	p, err := f.prepare(ctx, &req.SendMessageRequest)
	if err != nil {
		return nil, err
	}

	allowed, err := f.limiter.Allow(ctx, services.ScheduleTenantKey(req.TenantID), f.limits.SchedulePerTenant, f.limits.Window)
	if err != nil {
		return nil, NewBusinessError("RATE_LIMIT_CHECK_FAILED", "Failed to check rate limit", err)
	}
	if !allowed {
		return nil, NewBusinessErrorf("SCHEDULE_RATE_LIMITED", "At most %d messages can be scheduled per %s", ErrRateLimited, f.limits.SchedulePerTenant, f.limits.Window)
	}

	row := newScheduledMessage(req.TenantID, p.channel, p.recipient, p.templateID, p.content, req.Context, req.UserID)
	row.ScheduledFor = req.ScheduledFor.UTC()
	if err := f.outbox.schedule(ctx, row); err != nil {
		return nil, err
	}

	requestLogger(ctx, f.logger).Info("Message scheduled", "tenant_id", req.TenantID, "scheduled_message_id", row.ID, "scheduled_for", row.ScheduledFor)
	item := ToScheduledMessageItem(row)
	return &item, nil
}

// Retry re-enqueues a FAILED message. The hard retry cap is checked before the
// per-message and per-tenant rate limits.
func (f *MessageFlowImpl) Retry(ctx context.Context, tenantID, messageID uint) (*dto.RetryMessageResponse, error) {
	msg, err := f.messageRepo.ByTenantAndID(ctx, tenantID, messageID)
	if err != nil {
		return nil, NewBusinessError("MESSAGE_LOOKUP_FAILED", "Failed to load message", err)
	}
	if msg == nil {
		return nil, NewBusinessError("MESSAGE_NOT_FOUND", "Message not found", ErrMessageNotFound)
	}
	if msg.Status != models.MessageStatusFailed {
		return nil, NewBusinessErrorf("MESSAGE_NOT_RETRYABLE", "Message is %s, only FAILED messages can be retried", ErrMessageNotRetryable, msg.Status)
	}
	if msg.RetryCount >= utils.MaxManualRetries {
		return nil, NewBusinessErrorf("RETRY_LIMIT_REACHED", "Message has been retried %d times", ErrRetryLimitReached, msg.RetryCount)
	}

	for _, check := range []struct {
		key   string
		limit int
		code  string
	}{
		{services.RetryMessageKey(tenantID, messageID), f.limits.RetryPerMessage, "MESSAGE_RETRY_RATE_LIMITED"},
		{services.RetryTenantKey(tenantID), f.limits.RetryPerTenant, "TENANT_RETRY_RATE_LIMITED"},
	} {
		allowed, err := f.limiter.Allow(ctx, check.key, check.limit, f.limits.Window)
		if err != nil {
			return nil, NewBusinessError("RATE_LIMIT_CHECK_FAILED", "Failed to check rate limit", err)
		}
		if !allowed {
			return nil, NewBusinessErrorf(check.code, "Retry limit of %d per %s exceeded", ErrRateLimited, check.limit, f.limits.Window)
		}
	}

	ok, err := f.messageRepo.ResetForRetry(ctx, messageID)
	if err != nil {
		return nil, NewBusinessError("RETRY_FAILED", "Failed to reset message", err)
	}
	if !ok {
		return nil, NewBusinessError("MESSAGE_NOT_RETRYABLE", "Message is no longer FAILED", ErrMessageNotRetryable)
	}

	msg.Status = models.MessageStatusQueued
	msg.RetryCount++
	msg.FailedAt = nil
	if _, err := f.dispatcher.Dispatch(ctx, msg); err != nil {
		if markErr := f.messageRepo.MarkFailed(ctx, msg.ID, fmt.Sprintf("enqueue failed: %v", err), f.now()); markErr != nil {
			f.logger.Error("Failed to mark message failed", "message_id", msg.ID, "error", markErr)
		}
		return nil, NewBusinessError("ENQUEUE_FAILED", "Failed to enqueue message", err)
	}

	requestLogger(ctx, f.logger).Info("Message retry queued", "tenant_id", tenantID, "message_id", messageID, "retry_count", msg.RetryCount)
	return &dto.RetryMessageResponse{Success: true, MessageID: msg.ID}, nil
}

// CancelScheduled cancels a PENDING scheduled message; anything else is not found
func (f *MessageFlowImpl) CancelScheduled(ctx context.Context, tenantID, scheduledID uint) (*dto.ScheduledMessageItem, error) {
	ok, err := f.scheduledRepo.Cancel(ctx, tenantID, scheduledID, f.now())
	if err != nil {
		return nil, NewBusinessError("CANCEL_FAILED", "Failed to cancel scheduled message", err)
	}
	if !ok {
		return nil, NewBusinessError("SCHEDULED_MESSAGE_NOT_FOUND", "Scheduled message not found or already processed", ErrScheduledMessageNotFound)
	}

	row, err := f.scheduledRepo.ByTenantAndID(ctx, tenantID, scheduledID)
	if err != nil {
		return nil, NewBusinessError("SCHEDULED_MESSAGE_LOOKUP_FAILED", "Failed to load scheduled message", err)
	}
	if row == nil {
		return nil, NewBusinessError("SCHEDULED_MESSAGE_NOT_FOUND", "Scheduled message not found", ErrScheduledMessageNotFound)
	}
	item := ToScheduledMessageItem(row)
	return &item, nil
}

// GetMessage returns one of the tenant's messages
func (f *MessageFlowImpl) GetMessage(ctx context.Context, tenantID, messageID uint) (*dto.MessageItem, error) {
	msg, err := f.messageRepo.ByTenantAndID(ctx, tenantID, messageID)
	if err != nil {
		return nil, NewBusinessError("MESSAGE_LOOKUP_FAILED", "Failed to load message", err)
	}
	if msg == nil {
		return nil, NewBusinessError("MESSAGE_NOT_FOUND", "Message not found", ErrMessageNotFound)
	}
	item := ToMessageItem(msg)
	return &item, nil
}

func messageFilter(req *dto.ListMessagesRequest) (models.MessageLogFilter, error) {
	if req.StartDate != nil && req.EndDate != nil && req.StartDate.After(*req.EndDate) {
		return models.MessageLogFilter{}, NewBusinessError("INVALID_DATE_RANGE", "start_date cannot be after end_date", ErrInvalidDateRange)
	}
	filter := models.MessageLogFilter{
		TenantID:      &req.TenantID,
		RecipientID:   req.RecipientID,
		Search:        utils.NonEmptyPtr(utils.Deref(req.Search)),
		CreatedAfter:  req.StartDate,
		CreatedBefore: req.EndDate,
	}
	if req.Channel != nil {
		filter.Channel = utils.ToPtr(models.MessageChannel(*req.Channel))
	}
	if req.Status != nil {
		filter.Status = utils.ToPtr(models.MessageStatus(*req.Status))
	}
	if req.RecipientType != nil {
		filter.RecipientType = utils.ToPtr(models.RecipientType(*req.RecipientType))
	}
	return filter, nil
}

func pageBounds(page, limit int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = utils.DefaultPageSize
	}
	if limit > utils.MaxPageSize {
		limit = utils.MaxPageSize
	}
	return page, limit, (page - 1) * limit
}

func pagination(total int64, page, limit int) dto.PaginationInfo {
	return dto.PaginationInfo{
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: int(math.Ceil(float64(total) / float64(limit))),
	}
}

// ListMessages returns a filtered page of the tenant's messages, newest first
func (f *MessageFlowImpl) ListMessages(ctx context.Context, req *dto.ListMessagesRequest) (*dto.ListMessagesResponse, error) {
	filter, err := messageFilter(req)
	if err != nil {
		return nil, err
	}
	page, limit, offset := pageBounds(req.Page, req.Limit)

	rows, err := f.messageRepo.ByFilter(ctx, filter, "", limit, offset)
	if err != nil {
		return nil, NewBusinessError("LIST_MESSAGES_FAILED", "Failed to list messages", err)
	}
	total, err := f.messageRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("LIST_MESSAGES_FAILED", "Failed to count messages", err)
	}

	items := make([]dto.MessageItem, 0, len(rows))
	for _, m := range rows {
		items = append(items, ToMessageItem(m))
	}
	return &dto.ListMessagesResponse{Items: items, Pagination: pagination(total, page, limit)}, nil
}

// ListScheduled returns a page of the tenant's scheduled messages, soonest first
func (f *MessageFlowImpl) ListScheduled(ctx context.Context, req *dto.ListScheduledMessagesRequest) (*dto.ListScheduledMessagesResponse, error) {
	filter := models.ScheduledMessageFilter{TenantID: &req.TenantID}
	if req.Channel != nil {
		filter.Channel = utils.ToPtr(models.MessageChannel(*req.Channel))
	}
	if req.Status != nil {
		filter.Status = utils.ToPtr(models.ScheduledMessageStatus(*req.Status))
	}
	page, limit, offset := pageBounds(req.Page, req.Limit)

	rows, err := f.scheduledRepo.ByFilter(ctx, filter, "scheduled_for ASC, id ASC", limit, offset)
	if err != nil {
		return nil, NewBusinessError("LIST_SCHEDULED_FAILED", "Failed to list scheduled messages", err)
	}
	total, err := f.scheduledRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("LIST_SCHEDULED_FAILED", "Failed to count scheduled messages", err)
	}

	items := make([]dto.ScheduledMessageItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, ToScheduledMessageItem(r))
	}
	return &dto.ListScheduledMessagesResponse{Items: items, Pagination: pagination(total, page, limit)}, nil
}

// Stats counts the tenant's messages by status and channel inside a window
func (f *MessageFlowImpl) Stats(ctx context.Context, req *dto.MessageStatsRequest) (*dto.MessageStatsResponse, error) {
	end := f.now()
	if req.EndDate != nil {
		end = req.EndDate.UTC()
	}
	start := end.Add(-defaultStatsWindow)
	if req.StartDate != nil {
		start = req.StartDate.UTC()
	}
	if start.After(end) {
		return nil, NewBusinessError("INVALID_DATE_RANGE", "start_date cannot be after end_date", ErrInvalidDateRange)
	}

	filter := models.MessageLogFilter{TenantID: &req.TenantID, CreatedAfter: &start, CreatedBefore: &end}
	byStatus, err := f.messageRepo.CountGrouped(ctx, filter, repository.MessageGroupByStatus)
	if err != nil {
		return nil, NewBusinessError("STATS_FAILED", "Failed to aggregate messages", err)
	}
	byChannel, err := f.messageRepo.CountGrouped(ctx, filter, repository.MessageGroupByChannel)
	if err != nil {
		return nil, NewBusinessError("STATS_FAILED", "Failed to aggregate messages", err)
	}

	resp := &dto.MessageStatsResponse{
		StartDate: start,
		EndDate:   end,
		ByStatus:  make(map[string]int64, len(models.AllMessageStatuses)),
		ByChannel: make(map[string]int64, len(models.AllMessageChannels)),
	}
	for _, s := range models.AllMessageStatuses {
		resp.ByStatus[string(s)] = 0
	}
	for _, c := range models.AllMessageChannels {
		resp.ByChannel[string(c)] = 0
	}
	for _, row := range byStatus {
		resp.ByStatus[row.Key] = row.Count
		resp.Total += row.Count
	}
	for _, row := range byChannel {
		resp.ByChannel[row.Key] = row.Count
	}
	return resp, nil
}

// deadLetterScanWindow bounds how many dead jobs are read per call before tenant filtering
const deadLetterScanWindow = 1000

// DeadLetters lists the tenant's dead jobs on a channel, newest first
func (f *MessageFlowImpl) DeadLetters(ctx context.Context, tenantID uint, channel string, limit int) ([]dto.DeadLetterItem, error) {
	ch := models.MessageChannel(channel)
	if !ch.Valid() {
		return nil, NewBusinessErrorf("INVALID_CHANNEL", "Unsupported channel %q", ErrInvalidChannel, channel)
	}
	_, limit, _ = pageBounds(1, limit)

	dead, err := f.dispatcher.DeadLetters(ctx, ch, deadLetterScanWindow)
	if err != nil {
		return nil, NewBusinessError("DEAD_LETTERS_FAILED", "Failed to read dead letters", err)
	}
	items := make([]dto.DeadLetterItem, 0, limit)
	for _, d := range dead {
		job, err := d.Envelope.Job()
		if err != nil || job.Tenant() != tenantID {
			continue
		}
		items = append(items, dto.DeadLetterItem{
			JobID:        d.Envelope.ID,
			Channel:      string(d.Envelope.Channel),
			MessageLogID: job.LogID(),
			Attempts:     d.Envelope.Attempt,
			Error:        d.Error,
			EnqueuedAt:   d.Envelope.EnqueuedAt,
			FailedAt:     d.FailedAt,
		})
		if len(items) == limit {
			break
		}
	}
	return items, nil
}
