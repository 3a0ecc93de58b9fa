package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/dto"
	businessflow "github.com/CHINMAYKUDALKAR/LINE-sub002/business_flow"
	"github.com/gofiber/fiber/v3"
)

// WebhookHandlerInterface defines the contract for provider delivery receipt endpoints
type WebhookHandlerInterface interface {
	VerifyWhatsApp(c fiber.Ctx) error
	WhatsApp(c fiber.Ctx) error
	SES(c fiber.Ctx) error
	Twilio(c fiber.Ctx) error
	Mock(c fiber.Ctx) error
}

// WebhookHandler receives provider callbacks. Receipts for unknown messages are
// acknowledged with 200 so providers do not redeliver them.
type WebhookHandler struct {
	baseHandler
	flow                businessflow.ReceiptFlow
	whatsappVerifyToken string
}

func NewWebhookHandler(flow businessflow.ReceiptFlow, whatsappVerifyToken string, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		baseHandler:         newBaseHandler(logger),
		flow:                flow,
		whatsappVerifyToken: whatsappVerifyToken,
	}
}

// VerifyWhatsApp answers the Meta subscription challenge
// @Router /webhooks/whatsapp [get]
func (h *WebhookHandler) VerifyWhatsApp(c fiber.Ctx) error {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != "subscribe" || h.whatsappVerifyToken == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(h.whatsappVerifyToken)) != 1 {
		return c.Status(fiber.StatusForbidden).SendString("verification failed")
	}
	return c.Status(fiber.StatusOK).SendString(challenge)
}

// WhatsApp ingests Cloud API status updates
// @Router /webhooks/whatsapp [post]
func (h *WebhookHandler) WhatsApp(c fiber.Ctx) error {
	var payload dto.WhatsAppWebhook
	if err := json.Unmarshal(c.Body(), &payload); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	ctx, cancel := h.requestContext(c, "/webhooks/whatsapp")
	defer cancel()

	results, err := h.flow.HandleWhatsApp(ctx, &payload)
	if err != nil {
		return h.flowError(c, err, "Failed to process WhatsApp webhook", "WEBHOOK_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Webhook processed", results)
}

// SES ingests SNS-wrapped SES notifications. SNS posts with a text/plain content type.
// @Router /webhooks/ses [post]
func (h *WebhookHandler) SES(c fiber.Ctx) error {
	var envelope dto.SNSEnvelope
	if err := json.Unmarshal(c.Body(), &envelope); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	ctx, cancel := h.requestContext(c, "/webhooks/ses")
	defer cancel()

	results, err := h.flow.HandleSES(ctx, &envelope)
	if err != nil {
		return h.flowError(c, err, "Failed to process SES webhook", "WEBHOOK_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Webhook processed", results)
}

// Twilio ingests form-encoded status callbacks
// @Router /webhooks/twilio [post]
func (h *WebhookHandler) Twilio(c fiber.Ctx) error {
	var callback dto.TwilioStatusCallback
	if err := c.Bind().Form(&callback); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid form body", "INVALID_REQUEST", err.Error())
	}
	if strings.TrimSpace(callback.MessageSid) == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "MessageSid is required", "VALIDATION_ERROR", nil)
	}

	ctx, cancel := h.requestContext(c, "/webhooks/twilio")
	defer cancel()

	result, err := h.flow.HandleTwilio(ctx, &callback)
	if err != nil {
		return h.flowError(c, err, "Failed to process Twilio webhook", "WEBHOOK_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Webhook processed", result)
}

// Mock applies a receipt in the canonical shape; used in development and tests
// @Router /webhooks/mock [post]
func (h *WebhookHandler) Mock(c fiber.Ctx) error {
	var req dto.MockReceiptRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, err := h.validate(c, &req); !ok {
		return err
	}

	ctx, cancel := h.requestContext(c, "/webhooks/mock")
	defer cancel()

	result, err := h.flow.HandleMock(ctx, &req)
	if err != nil {
		return h.flowError(c, err, "Failed to process receipt", "WEBHOOK_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Receipt processed", result)
}
