// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/dto"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/middleware"
	businessflow "github.com/CHINMAYKUDALKAR/LINE-sub002/business_flow"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/requestid"
)

const defaultRequestTimeout = 30 * time.Second

// baseHandler carries what every handler needs: a validator, a logger and the response envelope
type baseHandler struct {
	validator *validator.Validate
	logger    *slog.Logger
}

func newBaseHandler(logger *slog.Logger) baseHandler {
	return baseHandler{validator: validator.New(), logger: logger}
}

func (h *baseHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success:   false,
		Message:   message,
		RequestID: requestid.FromContext(c),
		Error: dto.ErrorDetail{
			Code:      errorCode,
			Retryable: statusCode == fiber.StatusTooManyRequests || statusCode == fiber.StatusServiceUnavailable,
			Details:   details,
		},
	})
}

func (h *baseHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success:   true,
		Message:   message,
		RequestID: requestid.FromContext(c),
		Data:      data,
	})
}

// validate runs struct validation and writes a 400 on failure; ok is false when a response was written
func (h *baseHandler) validate(c fiber.Ctx, req any) (bool, error) {
	if err := h.validator.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return false, h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", err.Error())
		}
		messages := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			messages = append(messages, getValidationErrorMessage(fe))
		}
		return false, h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", messages)
	}
	return true, nil
}

// tenant returns the authenticated tenant or writes a 401
func (h *baseHandler) tenant(c fiber.Ctx) (uint, bool, error) {
	tenantID, ok := middleware.GetTenantIDFromContext(c)
	if !ok {
		return 0, false, h.ErrorResponse(c, fiber.StatusUnauthorized, "Tenant not found in context", "MISSING_TENANT_ID", nil)
	}
	return tenantID, true, nil
}

func (h *baseHandler) actingUser(c fiber.Ctx) *uint {
	if userID, ok := middleware.GetUserIDFromContext(c); ok {
		return &userID
	}
	return nil
}

// idParam parses a positive numeric path parameter or writes a 400
func (h *baseHandler) idParam(c fiber.Ctx, name string) (uint, bool, error) {
	raw := c.Params(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false, h.ErrorResponse(c, fiber.StatusBadRequest, fmt.Sprintf("Invalid %s", name), "INVALID_ID", raw)
	}
	return uint(id), true, nil
}

// flowError maps business errors onto HTTP statuses; anything unclassified is a 500
func (h *baseHandler) flowError(c fiber.Ctx, err error, fallbackMessage, fallbackCode string) error {
	code := fallbackCode
	message := err.Error()
	var be *businessflow.BusinessError
	if errors.As(err, &be) {
		code = be.Code
		message = be.Message
	}

	switch {
	case businessflow.IsValidation(err):
		return h.ErrorResponse(c, fiber.StatusBadRequest, message, code, nil)
	case businessflow.IsNotFound(err):
		return h.ErrorResponse(c, fiber.StatusNotFound, message, code, nil)
	case businessflow.IsRateLimit(err):
		return h.ErrorResponse(c, fiber.StatusTooManyRequests, message, code, nil)
	case businessflow.IsConflict(err):
		return h.ErrorResponse(c, fiber.StatusConflict, message, code, nil)
	}

	h.logger.Error(fallbackMessage, "path", c.Path(), "error", err)
	return h.ErrorResponse(c, fiber.StatusInternalServerError, fallbackMessage, fallbackCode, nil)
}

// requestContext builds a request-scoped context; callers must invoke cancel
func (h *baseHandler) requestContext(c fiber.Ctx, endpoint string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultRequestTimeout)
	requestID := requestid.FromContext(c)
	if requestID == "" {
		requestID = c.Get("X-Request-ID")
	}
	ctx = context.WithValue(ctx, utils.RequestIDKey, requestID)
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	return ctx, cancel
}

func queryString(c fiber.Ctx, key string) *string {
	return utils.NonEmptyPtr(c.Query(key))
}

func queryUpper(c fiber.Ctx, key string) *string {
	v := queryString(c, key)
	if v == nil {
		return nil
	}
	upper := strings.ToUpper(*v)
	return &upper
}

func queryBool(c fiber.Ctx, key string) (*bool, error) {
	v := queryString(c, key)
	if v == nil {
		return nil, nil
	}
	b, err := strconv.ParseBool(*v)
	if err != nil {
		return nil, fmt.Errorf("%s must be a boolean", key)
	}
	return &b, nil
}

func queryInt(c fiber.Ctx, key string, def int) (int, error) {
	v := queryString(c, key)
	if v == nil {
		return def, nil
	}
	n, err := strconv.Atoi(*v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}

func queryTime(c fiber.Ctx, key string) (*time.Time, error) {
	v := queryString(c, key)
	if v == nil {
		return nil, nil
	}
	t, err := utils.ParseTimeValue(*v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return &t, nil
}

func getValidationErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "email":
		return "Invalid email format"
	case "min":
		return err.Field() + " must be at least " + err.Param() + " characters"
	case "max":
		return err.Field() + " must be at most " + err.Param() + " characters"
	case "len":
		return err.Field() + " must be exactly " + err.Param() + " characters"
	case "oneof":
		return err.Field() + " must be one of: " + err.Param()
	case "numeric":
		return err.Field() + " must contain only numbers"
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", err.Field(), err.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", err.Field(), err.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", err.Field(), err.Param())
	default:
		return err.Field() + " is invalid"
	}
}
