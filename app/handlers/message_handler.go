package handlers

import (
	"log/slog"
	"strings"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/dto"
	businessflow "github.com/CHINMAYKUDALKAR/LINE-sub002/business_flow"
	"github.com/gofiber/fiber/v3"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// MessageHandlerInterface defines the contract for message handlers
type MessageHandlerInterface interface {
	Send(c fiber.Ctx) error
	Schedule(c fiber.Ctx) error
	Retry(c fiber.Ctx) error
	CancelScheduled(c fiber.Ctx) error
	Get(c fiber.Ctx) error
	List(c fiber.Ctx) error
	ListScheduled(c fiber.Ctx) error
	Stats(c fiber.Ctx) error
	Export(c fiber.Ctx) error
	DeadLetters(c fiber.Ctx) error
}

// MessageHandler serves the message send, schedule and history endpoints
type MessageHandler struct {
	baseHandler
	flow businessflow.MessageFlow
}

func NewMessageHandler(flow businessflow.MessageFlow, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{baseHandler: newBaseHandler(logger), flow: flow}
}

func normalizeSend(req *dto.SendMessageRequest) {
	req.Channel = strings.ToUpper(strings.TrimSpace(req.Channel))
	req.RecipientType = strings.ToUpper(strings.TrimSpace(req.RecipientType))
	req.RecipientID = strings.TrimSpace(req.RecipientID)
}

// Send queues one message for immediate delivery
// @Router /api/v1/messages [post]
func (h *MessageHandler) Send(c fiber.Ctx) error {
	var req dto.SendMessageRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	normalizeSend(&req)
	if ok, err := h.validate(c, &req); !ok {
		return err
	}
	tenantID, ok, err := h.tenant(c)
	if !ok {
		return err
	}
	req.TenantID = tenantID
	req.UserID = h.actingUser(c)

	ctx, cancel := h.requestContext(c, "/api/v1/messages")
	defer cancel()

	item, err := h.flow.Send(ctx, &req)
	if err != nil {
		return h.flowError(c, err, "Failed to send message", "SEND_MESSAGE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusAccepted, "Message queued", item)
}

// Schedule stores a message for delivery at a future time
// @Router /api/v1/messages/schedule [post]
func (h *MessageHandler) Schedule(c fiber.Ctx) error {
	var req dto.ScheduleMessageRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	normalizeSend(&req.SendMessageRequest)
	if ok, err := h.validate(c, &req); !ok {
		return err
	}
	tenantID, ok, err := h.tenant(c)
	if !ok {
		return err
	}
	req.TenantID = tenantID
	req.UserID = h.actingUser(c)

	ctx, cancel := h.requestContext(c, "/api/v1/messages/schedule")
	defer cancel()

	item, err := h.flow.Schedule(ctx, &req)
	if err != nil {
		return h.flowError(c, err, "Failed to schedule message", "SCHEDULE_MESSAGE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Message scheduled", item)
}

// Retry re-enqueues a failed message
// @Router /api/v1/messages/{id}/retry [post]
func (h *MessageHandler) Retry(c fiber.Ctx) error {
	tenantID, ok, err := h.tenant(c)
	if !ok {
		return err
	}
	id, ok, err := h.idParam(c, "id")
	if !ok {
		return err
	}

	ctx, cancel := h.requestContext(c, "/api/v1/messages/:id/retry")
	defer cancel()

	resp, err := h.flow.Retry(ctx, tenantID, id)
	if err != nil {
		return h.flowError(c, err, "Failed to retry message", "RETRY_MESSAGE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Message re-queued", resp)
}

// CancelScheduled cancels a pending scheduled message
// @Router /api/v1/messages/scheduled/{id} [delete]
func (h *MessageHandler) CancelScheduled(c fiber.Ctx) error {
	tenantID, ok, err := h.tenant(c)
	if !ok {
		return err
	}
	id, ok, err := h.idParam(c, "id")
	if !ok {
		return err
	}

	ctx, cancel := h.requestContext(c, "/api/v1/messages/scheduled/:id")
	defer cancel()

	item, err := h.flow.CancelScheduled(ctx, tenantID, id)
	if err != nil {
		return h.flowError(c, err, "Failed to cancel scheduled message", "CANCEL_SCHEDULED_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Scheduled message cancelled", item)
}

// Get returns one message log
// @Router /api/v1/messages/{id} [get]
func (h *MessageHandler) Get(c fiber.Ctx) error {
	tenantID, ok, err := h.tenant(c)
	if !ok {
		return err
	}
	id, ok, err := h.idParam(c, "id")
	if !ok {
		return err
	}

	ctx, cancel := h.requestContext(c, "/api/v1/messages/:id")
	defer cancel()

	item, err := h.flow.GetMessage(ctx, tenantID, id)
	if err != nil {
		return h.flowError(c, err, "Failed to get message", "GET_MESSAGE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Message retrieved successfully", item)
}

func (h *MessageHandler) parseListRequest(c fiber.Ctx, tenantID uint) (*dto.ListMessagesRequest, error) {
	req := &dto.ListMessagesRequest{
		TenantID:      tenantID,
		Channel:       queryUpper(c, "channel"),
		Status:        queryUpper(c, "status"),
		RecipientType: queryUpper(c, "recipient_type"),
		RecipientID:   queryString(c, "recipient_id"),
		Search:        queryString(c, "search"),
	}
	var err error
	if req.StartDate, err = queryTime(c, "start_date"); err != nil {
		return nil, err
	}
	if req.EndDate, err = queryTime(c, "end_date"); err != nil {
		return nil, err
	}
	if req.Page, err = queryInt(c, "page", 1); err != nil {
		return nil, err
	}
	if req.Limit, err = queryInt(c, "limit", 20); err != nil {
		return nil, err
	}
	return req, nil
}

// List returns a filtered page of message logs
// @Router /api/v1/messages [get]
func (h *MessageHandler) List(c fiber.Ctx) error {
	tenantID, ok, err := h.tenant(c)
	if !ok {
		return err
	}
	req, err := h.parseListRequest(c, tenantID)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query", "INVALID_QUERY", err.Error())
	}
	if ok, err := h.validate(c, req); !ok {
		return err
	}

	ctx, cancel := h.requestContext(c, "/api/v1/messages")
	defer cancel()

	resp, err := h.flow.ListMessages(ctx, req)
	if err != nil {
		return h.flowError(c, err, "Failed to list messages", "LIST_MESSAGES_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Messages retrieved successfully", resp)
}

// ListScheduled returns a filtered page of scheduled messages
// @Router /api/v1/messages/scheduled [get]
func (h *MessageHandler) ListScheduled(c fiber.Ctx) error {
	tenantID, ok, err := h.tenant(c)
	if !ok {
		return err
	}
	req := &dto.ListScheduledMessagesRequest{
		TenantID: tenantID,
		Channel:  queryUpper(c, "channel"),
		Status:   queryUpper(c, "status"),
	}
	if req.Page, err = queryInt(c, "page", 1); err == nil {
		req.Limit, err = queryInt(c, "limit", 20)
	}
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query", "INVALID_QUERY", err.Error())
	}
	if ok, err := h.validate(c, req); !ok {
		return err
	}

	ctx, cancel := h.requestContext(c, "/api/v1/messages/scheduled")
	defer cancel()

	resp, err := h.flow.ListScheduled(ctx, req)
	if err != nil {
		return h.flowError(c, err, "Failed to list scheduled messages", "LIST_SCHEDULED_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Scheduled messages retrieved successfully", resp)
}

// Stats counts messages by status and channel
// @Router /api/v1/messages/stats [get]
func (h *MessageHandler) Stats(c fiber.Ctx) error {
	tenantID, ok, err := h.tenant(c)
	if !ok {
		return err
	}
	req := &dto.MessageStatsRequest{TenantID: tenantID}
	if req.StartDate, err = queryTime(c, "start_date"); err == nil {
		req.EndDate, err = queryTime(c, "end_date")
	}
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query", "INVALID_QUERY", err.Error())
	}

	ctx, cancel := h.requestContext(c, "/api/v1/messages/stats")
	defer cancel()

	resp, err := h.flow.Stats(ctx, req)
	if err != nil {
		return h.flowError(c, err, "Failed to compute message stats", "MESSAGE_STATS_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Message stats retrieved successfully", resp)
}

// Export streams matching message logs as an xlsx workbook
// @Router /api/v1/messages/export [get]
func (h *MessageHandler) Export(c fiber.Ctx) error {
	tenantID, ok, err := h.tenant(c)
	if !ok {
		return err
	}
	req, err := h.parseListRequest(c, tenantID)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query", "INVALID_QUERY", err.Error())
	}
	if ok, err := h.validate(c, req); !ok {
		return err
	}

	ctx, cancel := h.requestContext(c, "/api/v1/messages/export")
	defer cancel()

	filename, data, err := h.flow.ExportMessages(ctx, req)
	if err != nil {
		return h.flowError(c, err, "Failed to export messages", "EXPORT_MESSAGES_FAILED")
	}
	c.Attachment(filename)
	c.Set(fiber.HeaderContentType, xlsxContentType)
	return c.Status(fiber.StatusOK).Send(data)
}

// DeadLetters lists queue jobs that exhausted their attempts
// @Router /api/v1/messages/dead-letters [get]
func (h *MessageHandler) DeadLetters(c fiber.Ctx) error {
	tenantID, ok, err := h.tenant(c)
	if !ok {
		return err
	}
	channel := strings.ToUpper(c.Query("channel"))
	limit, err := queryInt(c, "limit", 50)
	if err != nil || limit < 1 || limit > 100 {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "limit must be between 1 and 100", "INVALID_QUERY", nil)
	}

	ctx, cancel := h.requestContext(c, "/api/v1/messages/dead-letters")
	defer cancel()

	items, err := h.flow.DeadLetters(ctx, tenantID, channel, limit)
	if err != nil {
		return h.flowError(c, err, "Failed to list dead letters", "DEAD_LETTERS_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Dead letters retrieved successfully", items)
}
